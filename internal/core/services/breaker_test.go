package services

import (
	"context"
	"testing"
	"time"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsExactlyAtThreshold(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker(3, 30*time.Second, nil)

	for i := 0; i < 2; i++ {
		b.RecordFailure(ctx, "A")
		assert.NoError(t, b.Guard(ctx, "A"), "circuit must stay CLOSED below threshold")
	}

	b.RecordFailure(ctx, "A")
	err := b.Guard(ctx, "A")
	assert.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindCircuitOpen, rerr.Kind)
}

func TestCircuitBreaker_SuccessResetsFailureCountFromAnyValue(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker(5, 30*time.Second, nil)

	b.RecordFailure(ctx, "A")
	b.RecordFailure(ctx, "A")
	b.RecordFailure(ctx, "A")
	assert.Equal(t, 3, b.Status("A").FailureCount)

	b.RecordSuccess("A")
	status := b.Status("A")
	assert.Equal(t, 0, status.FailureCount)
	assert.Equal(t, domain.CircuitClosed, status.State)
}

func TestCircuitBreaker_ReopensOnFailureAfterCooldownExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker(1, 10*time.Millisecond, nil)

	b.RecordFailure(ctx, "A")
	assert.Error(t, b.Guard(ctx, "A"))

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, b.Guard(ctx, "A"), "cooldown elapsed, circuit treated as CLOSED for guarding")

	b.RecordFailure(ctx, "A")
	assert.Error(t, b.Guard(ctx, "A"), "next failure after the probe reopens it")
}

// TestCircuitBreaker_SharedModeConsultsStore mirrors spec.md §4.3's
// "shared mode": a fake StateBackend reporting the provider's circuit
// key as present must short-circuit Guard even with a fresh in-process
// breaker that has recorded zero failures.
func TestCircuitBreaker_SharedModeConsultsStore(t *testing.T) {
	ctx := context.Background()
	shared := &fakeSharedStore{open: map[string]bool{"A": true}}
	b := NewCircuitBreaker(5, 30*time.Second, shared)

	err := b.Guard(ctx, "A")
	assert.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindCircuitOpen, rerr.Kind)
}

func TestCircuitBreaker_TripMirrorsToSharedStore(t *testing.T) {
	ctx := context.Background()
	shared := &fakeSharedStore{open: map[string]bool{}}
	b := NewCircuitBreaker(1, 30*time.Second, shared)

	b.RecordFailure(ctx, "A")
	assert.True(t, shared.open["A"])
}

type fakeSharedStore struct {
	open map[string]bool
}

func (f *fakeSharedStore) RecordRequest(ctx context.Context, provider string, tokens int, window time.Duration) error {
	return nil
}
func (f *fakeSharedStore) GetUsage(ctx context.Context, provider string, window time.Duration) (int, int, error) {
	return 0, 0, nil
}
func (f *fakeSharedStore) GetSessionProvider(ctx context.Context, sessionID string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeSharedStore) SetSessionProvider(ctx context.Context, sessionID, provider string, ttl time.Duration) error {
	return nil
}
func (f *fakeSharedStore) SetCircuitOpen(ctx context.Context, provider string, ttl time.Duration) error {
	f.open[provider] = true
	return nil
}
func (f *fakeSharedStore) IsCircuitOpen(ctx context.Context, provider string) (bool, error) {
	return f.open[provider], nil
}
func (f *fakeSharedStore) Close() error { return nil }
