package blob

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cinelog/catalog-api/internal/metrics"

	"github.com/sirupsen/logrus"
)

// BreakerState represents the current state of the circuit breaker
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// ErrCircuitOpen is returned without calling the backend while the breaker is open.
var ErrCircuitOpen = errors.New("blob: circuit breaker is open")

// Breaker wraps a Store with the circuit breaker pattern. A missing object
// is an answer, not a failure, and does not count against the backend.
type Breaker struct {
	next              Store
	logger            *logrus.Logger
	state             BreakerState
	failureCount      int
	successCount      int
	lastFailureTime   time.Time
	mu                sync.RWMutex
	maxFailures       int           // Open circuit after N failures
	resetTimeout      time.Duration // Wait before trying half-open
	halfOpenSuccesses int           // Required successes to close circuit
	now               func() time.Time
}

// NewBreaker wraps next with default thresholds
func NewBreaker(next Store, logger *logrus.Logger) *Breaker {
	metrics.SetBlobBreakerState(int(StateClosed))
	return &Breaker{
		next:              next,
		logger:            logger,
		state:             StateClosed,
		maxFailures:       5,
		resetTimeout:      10 * time.Second,
		halfOpenSuccesses: 3,
		now:               time.Now,
	}
}

func (b *Breaker) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return b.execute(func() error { return b.next.Put(ctx, key, data, contentType) })
}

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.execute(func() error {
		var err error
		data, err = b.next.Get(ctx, key)
		return err
	})
	return data, err
}

func (b *Breaker) Delete(ctx context.Context, key string) error {
	return b.execute(func() error { return b.next.Delete(ctx, key) })
}

func (b *Breaker) execute(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.successCount = 0
		b.logger.Info("Blob circuit breaker: OPEN → HALF_OPEN (retry attempt)")
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidKey) {
		b.onFailure(err)
		return err
	}

	b.onSuccess()
	return err
}

func (b *Breaker) onFailure(err error) {
	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.maxFailures {
			b.setState(StateOpen)
			b.logger.WithFields(logrus.Fields{
				"failure_count": b.failureCount,
				"error":         err.Error(),
			}).Error("Blob circuit breaker: CLOSED → OPEN")
		}

	case StateHalfOpen:
		b.setState(StateOpen)
		b.failureCount = 0
		b.logger.WithError(err).Error("Blob circuit breaker: HALF_OPEN → OPEN (blob store still unhealthy)")
	}
}

func (b *Breaker) onSuccess() {
	b.successCount++

	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		if b.successCount >= b.halfOpenSuccesses {
			b.setState(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			b.logger.Info("Blob circuit breaker: HALF_OPEN → CLOSED (blob store recovered)")
		}
	}
}

func (b *Breaker) setState(s BreakerState) {
	b.state = s
	metrics.SetBlobBreakerState(int(s))
}

// State returns the current circuit breaker state
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns current circuit breaker statistics
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"state":         b.state.String(),
		"failure_count": b.failureCount,
		"success_count": b.successCount,
		"max_failures":  b.maxFailures,
		"last_failure":  b.lastFailureTime,
		"reset_timeout": b.resetTimeout.String(),
	}
}
