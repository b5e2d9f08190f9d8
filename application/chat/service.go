package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"llm-stream/domain/chat"
	"llm-stream/domain/persistence"
)

// Service orchestrates streamed chat exchanges: it validates requests, opens
// the stream, forwards fragments in arrival order, and records the exchange
// through the tracker without ever blocking delivery.
type Service struct {
	opener       chat.StreamOpener
	tracker      persistence.ExchangeTracker
	defaultModel string
}

func NewService(opener chat.StreamOpener, tracker persistence.ExchangeTracker, defaultModel string) *Service {
	return &Service{
		opener:       opener,
		tracker:      tracker,
		defaultModel: defaultModel,
	}
}

// NewServiceWithoutTracking creates a service that does not record exchanges
func NewServiceWithoutTracking(opener chat.StreamOpener, defaultModel string) *Service {
	return &Service{
		opener:       opener,
		tracker:      nil,
		defaultModel: defaultModel,
	}
}

// Stream runs one streamed exchange, invoking onFragment for every content
// fragment in order. It returns once the stream terminates: nil on clean
// termination, the stream's error on mid-stream failure, or the handler's
// error if the handler aborted delivery.
func (s *Service) Stream(ctx context.Context, req *chat.Request, onFragment chat.FragmentHandler) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	exchangeID := uuid.New()
	// Middleware may have already assigned an ID to this exchange.
	if uuidStr, ok := ctx.Value("request_uuid").(string); ok {
		if parsed, err := uuid.Parse(uuidStr); err == nil {
			exchangeID = parsed
		}
	}
	startTime := time.Now()

	tracked := s.beginTracking(exchangeID, req)

	stream, err := s.opener.StreamCompletion(ctx, req)
	if err != nil {
		if tracked {
			s.failTracking(exchangeID, err)
		}
		return err
	}
	defer stream.Close()

	var reply []byte
	fragmentCount := 0
	for fragment := range stream.Fragments() {
		reply = append(reply, fragment...)
		fragmentCount++

		if handlerErr := onFragment(fragment); handlerErr != nil {
			stream.Close()
			if tracked {
				s.failTracking(exchangeID, handlerErr)
			}
			return fmt.Errorf("fragment handler: %w", handlerErr)
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		if tracked {
			s.failTracking(exchangeID, streamErr)
		}
		return streamErr
	}

	if tracked {
		latency := time.Since(startTime).Milliseconds()
		if err := s.tracker.CompleteTracking(context.WithoutCancel(ctx), exchangeID, string(reply), fragmentCount, latency); err != nil {
			logrus.WithError(err).WithField("exchange_id", exchangeID).Warn("Failed to record exchange completion")
		}
	}

	return nil
}

func validateRequest(req *chat.Request) error {
	if len(req.Messages) == 0 {
		return errors.New("messages cannot be empty")
	}

	const maxMessages = 100
	if len(req.Messages) > maxMessages {
		return fmt.Errorf("too many messages: %d (max %d)", len(req.Messages), maxMessages)
	}

	for i, msg := range req.Messages {
		if msg.Role == "" {
			return fmt.Errorf("message %d: role cannot be empty", i)
		}
		if msg.Content == "" {
			return fmt.Errorf("message %d: content cannot be empty", i)
		}
		const maxContentLength = 50000
		if len(msg.Content) > maxContentLength {
			return fmt.Errorf("message %d: content too long (%d chars, max %d)", i, len(msg.Content), maxContentLength)
		}
		if msg.Role != chat.RoleUser && msg.Role != chat.RoleAssistant && msg.Role != chat.RoleSystem {
			return fmt.Errorf("message %d: invalid role '%s' (must be user, assistant, or system)", i, msg.Role)
		}
	}

	return nil
}

// beginTracking enqueues the pending exchange record. The tracker is
// non-blocking, so recording never delays the stream.
func (s *Service) beginTracking(exchangeID uuid.UUID, req *chat.Request) bool {
	if s.tracker == nil {
		return false
	}

	requestData, err := json.Marshal(struct {
		Model    string         `json:"model"`
		Messages []chat.Message `json:"messages"`
	}{
		Model:    req.Model.Resolve(s.defaultModel),
		Messages: req.Messages,
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to serialize request for exchange tracking")
		return false
	}

	if err := s.tracker.StartTracking(context.Background(), exchangeID, requestData, req.Model.Resolve(s.defaultModel)); err != nil {
		logrus.WithError(err).WithField("exchange_id", exchangeID).Warn("Failed to start exchange tracking")
		return false
	}
	return true
}

func (s *Service) failTracking(exchangeID uuid.UUID, cause error) {
	if err := s.tracker.FailTracking(context.Background(), exchangeID, cause.Error()); err != nil {
		logrus.WithError(err).WithField("exchange_id", exchangeID).Warn("Failed to record exchange failure")
	}
}
