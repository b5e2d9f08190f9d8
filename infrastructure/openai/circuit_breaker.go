package openai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"llm-stream/domain/chat"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive setup failures
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      3,                // Allow max 3 probes in half-open state
	}
}

// BreakerOpener wraps a StreamOpener with per-model circuit breakers. Only
// stream setup (request build, connection, initial status validation) counts
// toward the breaker; mid-stream failures belong to the stream's own error
// channel and are invisible here.
type BreakerOpener struct {
	opener   chat.StreamOpener
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

func NewBreakerOpener(opener chat.StreamOpener, config CircuitBreakerConfig) *BreakerOpener {
	return &BreakerOpener{
		opener:   opener,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// StreamCompletion implements chat.StreamOpener with circuit breaker protection.
func (b *BreakerOpener) StreamCompletion(ctx context.Context, req *chat.Request) (chat.FragmentStream, error) {
	if !b.config.Enabled {
		return b.opener.StreamCompletion(ctx, req)
	}

	model := breakerKey(req.Model)
	breaker := b.getOrCreateBreaker(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return b.opener.StreamCompletion(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			logrus.WithFields(logrus.Fields{
				"model": model,
				"state": breaker.State(),
			}).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("circuit breaker open for model %s: stream setup is being rejected", model)
		}
		return nil, err
	}

	return result.(chat.FragmentStream), nil
}

// States returns the current state of all circuit breakers for monitoring.
func (b *BreakerOpener) States() map[string]gobreaker.State {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	states := make(map[string]gobreaker.State)
	for model, breaker := range b.breakers {
		states[model] = breaker.State()
	}
	return states
}

func (b *BreakerOpener) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker {
	b.mutex.RLock()
	if breaker, exists := b.breakers[model]; exists {
		b.mutex.RUnlock()
		return breaker
	}
	b.mutex.RUnlock()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if breaker, exists := b.breakers[model]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("llm-model-%s", model),
		MaxRequests: b.config.MaxRequests,
		Timeout:     b.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= b.config.FailureThreshold &&
				counts.TotalFailures >= b.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"model":      model,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	b.breakers[model] = breaker

	logrus.WithField("model", model).Info("Created new circuit breaker for model")
	return breaker
}

// breakerKey normalizes a model choice into a map key; the default choice
// shares one breaker since it resolves to one configured model.
func breakerKey(m chat.ModelChoice) string {
	id := m.Resolve("")
	if id == "" {
		return "default"
	}
	id = strings.ToLower(strings.ReplaceAll(id, "/", "-"))
	return strings.ReplaceAll(id, ".", "-")
}
