package services

import (
	"context"
	"sync"
	"time"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/core/ports"
	"github.com/llmrouter/router/internal/logger"
	"go.uber.org/zap"
)

type breakerEntry struct {
	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// CircuitBreaker is a per-provider failure-count state machine with a
// timed open state. Failure counts always stay in-process; when a
// shared StateBackend is configured, the OPEN condition is additionally
// mirrored there so every instance in a multi-process deployment
// respects a trip even though undercounting failures across instances
// is tolerated.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	state     sync.Map // provider -> *breakerEntry
	shared    ports.StateBackend
}

// NewCircuitBreaker builds a breaker. shared may be nil for pure
// in-process mode.
func NewCircuitBreaker(threshold int, cooldown time.Duration, shared ports.StateBackend) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, shared: shared}
}

func (b *CircuitBreaker) entry(provider string) *breakerEntry {
	v, _ := b.state.LoadOrStore(provider, &breakerEntry{})
	return v.(*breakerEntry)
}

// Guard fails fast with a domain.KindCircuitOpen error if provider's
// circuit is OPEN and its cooldown has not elapsed. A concurrent post-
// cooldown request is admitted rather than reserved as a single probe;
// the first such request to complete determines the subsequent state.
func (b *CircuitBreaker) Guard(ctx context.Context, provider string) error {
	if b.shared != nil {
		open, err := b.shared.IsCircuitOpen(ctx, provider)
		if err == nil && open {
			return domain.NewCircuitOpen(provider)
		}
	}

	e := b.entry(provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openUntil.IsZero() {
		return nil
	}
	if time.Now().Before(e.openUntil) {
		return domain.NewCircuitOpen(provider)
	}
	// Cooldown elapsed: effectively closed for guarding purposes.
	e.openUntil = time.Time{}
	e.failures = 0
	return nil
}

// RecordSuccess resets the provider's failure count and closes the
// circuit, regardless of prior state.
func (b *CircuitBreaker) RecordSuccess(provider string) {
	e := b.entry(provider)
	e.mu.Lock()
	e.failures = 0
	e.openUntil = time.Time{}
	e.mu.Unlock()
}

// RecordFailure increments the provider's failure count, tripping the
// circuit OPEN when the threshold is reached.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, provider string) {
	e := b.entry(provider)
	e.mu.Lock()
	e.failures++
	tripped := e.failures >= b.threshold
	if tripped {
		e.openUntil = time.Now().Add(b.cooldown)
		e.failures = 0
	}
	e.mu.Unlock()

	if tripped && b.shared != nil {
		if err := b.shared.SetCircuitOpen(ctx, provider, b.cooldown); err != nil {
			logger.Warn("failed to mirror circuit open to shared store",
				logger.Provider(provider), zap.Error(err))
		}
	}
}

// Status returns provider's current snapshot for Router.Status().
func (b *CircuitBreaker) Status(provider string) domain.CircuitState {
	e := b.entry(provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	state := domain.CircuitClosed
	if !e.openUntil.IsZero() && time.Now().Before(e.openUntil) {
		state = domain.CircuitOpen
	}
	return domain.CircuitState{State: state, FailureCount: e.failures, OpenUntil: e.openUntil}
}
