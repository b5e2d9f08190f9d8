package persistence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"llm-stream/domain/persistence"
)

// Recorder implements persistence.ExchangeTracker with a bounded queue and a
// worker pool, so recording never blocks the fragment stream it observes.
type Recorder struct {
	repo        persistence.ExchangeRepository
	eventChan   chan persistence.RecordEvent
	workerCount int
	bufferSize  int

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64
}

// NewRecorder creates a new async recorder
func NewRecorder(repo persistence.ExchangeRepository, workerCount, bufferSize int) *Recorder {
	if workerCount <= 0 {
		workerCount = 2
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	return &Recorder{
		repo:        repo,
		eventChan:   make(chan persistence.RecordEvent, bufferSize),
		workerCount: workerCount,
		bufferSize:  bufferSize,
	}
}

// Start begins draining the event queue
func (r *Recorder) Start(ctx context.Context) error {
	if r.isRunning.Load() {
		return fmt.Errorf("recorder is already running")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.isRunning.Store(true)

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": r.workerCount,
		"buffer_size":  r.bufferSize,
	}).Info("Exchange recorder started")

	return nil
}

// Stop drains in-flight events and shuts the workers down
func (r *Recorder) Stop() error {
	if !r.isRunning.Load() {
		return nil
	}

	logrus.Info("Stopping exchange recorder...")

	close(r.eventChan)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Exchange recorder stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Exchange recorder stop timed out")
	}

	r.cancel()
	r.isRunning.Store(false)
	return nil
}

// Health returns the recorder's health status
func (r *Recorder) Health() persistence.RecorderHealth {
	return persistence.RecorderHealth{
		IsRunning:      r.isRunning.Load(),
		QueueSize:      len(r.eventChan),
		ProcessedCount: r.processedCount.Load(),
		ErrorCount:     r.errorCount.Load(),
	}
}

// StartTracking enqueues creation of a pending exchange record.
func (r *Recorder) StartTracking(ctx context.Context, id uuid.UUID, requestData []byte, model string) error {
	return r.enqueue(persistence.RecordEvent{
		Type:        persistence.EventTypeStartExchange,
		ExchangeID:  id,
		RequestData: requestData,
		Model:       model,
	})
}

// CompleteTracking enqueues completion with the reassembled reply.
func (r *Recorder) CompleteTracking(ctx context.Context, id uuid.UUID, reply string, fragmentCount int, latencyMs int64) error {
	return r.enqueue(persistence.RecordEvent{
		Type:          persistence.EventTypeCompleteExchange,
		ExchangeID:    id,
		Reply:         reply,
		FragmentCount: fragmentCount,
		LatencyMs:     latencyMs,
	})
}

// FailTracking enqueues a failure update.
func (r *Recorder) FailTracking(ctx context.Context, id uuid.UUID, errorMsg string) error {
	return r.enqueue(persistence.RecordEvent{
		Type:         persistence.EventTypeFailExchange,
		ExchangeID:   id,
		ErrorMessage: errorMsg,
	})
}

func (r *Recorder) enqueue(event persistence.RecordEvent) error {
	if !r.isRunning.Load() {
		return fmt.Errorf("recorder is not running")
	}

	select {
	case r.eventChan <- event:
		return nil
	default:
		// Never block the caller: a full queue drops the event.
		r.errorCount.Add(1)
		logrus.WithField("event_type", event.Type).Warn("Recorder queue is full, dropping event")
		return fmt.Errorf("recorder queue is full")
	}
}

// worker processes events from the queue until it is closed
func (r *Recorder) worker(workerID int) {
	defer r.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Debug("Recorder worker started")

	for event := range r.eventChan {
		if err := r.process(event); err != nil {
			r.errorCount.Add(1)
			logger.WithError(err).WithFields(logrus.Fields{
				"event_type":  event.Type,
				"exchange_id": event.ExchangeID,
			}).Error("Failed to process record event")
			continue
		}
		r.processedCount.Add(1)
	}

	logger.Debug("Recorder worker stopped")
}

func (r *Recorder) process(event persistence.RecordEvent) error {
	opCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch event.Type {
	case persistence.EventTypeStartExchange:
		return r.repo.Create(opCtx, &persistence.ExchangeRecord{
			ID:          event.ExchangeID,
			RequestData: event.RequestData,
			Model:       event.Model,
			Status:      persistence.ExchangeStatusPending,
		})
	case persistence.EventTypeCompleteExchange:
		return r.repo.Complete(opCtx, event.ExchangeID, event.Reply, event.FragmentCount, event.LatencyMs)
	case persistence.EventTypeFailExchange:
		return r.repo.Fail(opCtx, event.ExchangeID, event.ErrorMessage)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}
