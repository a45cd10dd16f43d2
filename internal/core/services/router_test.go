package services

import (
	"context"
	"errors"
	"testing"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/state/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, adapters ...*stubAdapter) *Router {
	t.Helper()
	cfg := domain.DefaultRouterConfig()
	router, err := NewRouter(cfg, memory.New(), nil)
	require.NoError(t, err)
	for _, a := range adapters {
		router.RegisterBYOC(a)
	}
	require.NoError(t, router.Start(context.Background()))
	return router
}

// TestRouter_ScenarioTwo mirrors spec.md §8 scenario 2: A's circuit is
// OPEN, B is healthy; the request must route to B in exactly one
// counted attempt (the skipped OPEN candidate does not count).
func TestRouter_ScenarioTwo_OpenCircuitSkipsToNextCandidate(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	b := &stubAdapter{name: "B", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	router := newTestRouter(t, a, b)

	for i := 0; i < 5; i++ {
		router.breaker.RecordFailure(context.Background(), "A")
	}
	require.Error(t, router.breaker.Guard(context.Background(), "A"))

	resp, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "B", resp.Provider)
	assert.Equal(t, 1, resp.Attempts)
}

// TestRouter_ScenarioThree mirrors spec.md §8 scenario 3: a single
// provider, failure_threshold=3. Three consecutive transient failures;
// the fourth call fails terminally with AllProvidersFailed and the
// breaker reports OPEN.
func TestRouter_ScenarioThree_AllProvidersFailedAfterThreshold(t *testing.T) {
	calls := 0
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	a.chatFn = func(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
		calls++
		return nil, domain.NewTransient("A", errors.New("upstream blip"))
	}

	cfg := domain.DefaultRouterConfig()
	cfg.CircuitBreaker.FailureThreshold = 3
	router, err := NewRouter(cfg, memory.New(), nil)
	require.NoError(t, err)
	router.RegisterBYOC(a)
	require.NoError(t, router.Start(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := router.Chat(context.Background(), &domain.RouterRequest{
			Messages: []domain.Message{{Role: "user", Content: "hi"}},
		})
		require.Error(t, err)
	}

	_, err = router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindAllProvidersFailed, rerr.Kind)
	assert.Equal(t, domain.CircuitOpen, router.breaker.Status("A").State)
}

// TestRouter_ScenarioFour mirrors spec.md §8 scenario 4: session
// affinity sticks a session to whichever provider first serves it, and
// a subsequent circuit trip on the bound provider causes a fresh
// binding to overwrite the old one.
func TestRouter_ScenarioFour_SessionAffinityAndRebind(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	b := &stubAdapter{name: "B", rpm: 100, tpm: 10000, weight: 0.5, enabled: true}
	router := newTestRouter(t, a, b)
	ctx := context.Background()

	first, err := router.Chat(ctx, &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A", first.Provider, "higher static weight wins with no usage recorded yet")

	second, err := router.Chat(ctx, &domain.RouterRequest{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, "A", second.Provider)

	for i := 0; i < 5; i++ {
		router.breaker.RecordFailure(ctx, "A")
	}

	third, err := router.Chat(ctx, &domain.RouterRequest{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, "B", third.Provider, "scorer must fall through to B once A's circuit is open")

	provider, ok, _ := router.state.GetSessionProvider(ctx, "s1")
	assert.True(t, ok)
	assert.Equal(t, "B", provider, "new binding overwrites s1->A")
}

// TestRouter_ScenarioSix mirrors spec.md §8 scenario 6: force_provider
// pins to A, A fails retriably, and the router falls back to B.
func TestRouter_ScenarioSix_ForcedProviderFallsBackOnFailure(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	a.chatFn = func(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
		return nil, domain.NewRateLimited("A", errors.New("rate limited"))
	}
	b := &stubAdapter{name: "B", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	router := newTestRouter(t, a, b)

	resp, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages:      []domain.Message{{Role: "user", Content: "hi"}},
		ForceProvider: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "B", resp.Provider)
	assert.Equal(t, 2, resp.Attempts)
}

func TestRouter_ForceProvider_HealthyRoutesInOneAttempt(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	b := &stubAdapter{name: "B", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	router := newTestRouter(t, a, b)

	resp, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages:      []domain.Message{{Role: "user", Content: "hi"}},
		ForceProvider: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.Provider)
	assert.Equal(t, 1, resp.Attempts)
}

func TestRouter_NonRetriableErrorSurfacesImmediately(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	a.chatFn = func(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
		return nil, domain.NewBadRequest("A", errors.New("malformed request"))
	}
	b := &stubAdapter{name: "B", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	router := newTestRouter(t, a, b)

	_, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	require.True(t, ok)
	assert.Len(t, rerr.Attempts, 1)
	assert.Equal(t, "A", rerr.Attempts[0].Provider)
}

func TestRouter_NoProvidersConfigured(t *testing.T) {
	router := newTestRouter(t)
	_, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNoProvidersConfigured, rerr.Kind)
}

func TestRouter_ZeroHeadroomAllProvidersYieldsAllProvidersFailed(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 10, tpm: 1000, weight: 1.0, enabled: true}
	router := newTestRouter(t, a)

	for i := 0; i < 10; i++ {
		require.NoError(t, router.state.RecordRequest(context.Background(), "A", 10, router.windowSeconds))
	}

	_, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindAllProvidersFailed, rerr.Kind)
}

func TestRouter_Status_ReportsPerProviderSnapshot(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	router := newTestRouter(t, a)

	_, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	status := router.Status(context.Background())
	snap, ok := status["A"]
	require.True(t, ok)
	assert.Equal(t, 1, snap.RPMUsed)
	assert.False(t, snap.CircuitOpen)
	assert.Greater(t, snap.AvgLatencyMS, -1.0)
}

func TestRouter_CallbackErrorsAreSwallowed(t *testing.T) {
	a := &stubAdapter{name: "A", rpm: 100, tpm: 10000, weight: 1.0, enabled: true}
	cfg := domain.DefaultRouterConfig()
	router, err := NewRouter(cfg, memory.New(), func(domain.RouteEvent) {
		panic("callback explosion must not propagate")
	})
	require.NoError(t, err)
	router.RegisterBYOC(a)
	require.NoError(t, router.Start(context.Background()))

	resp, err := router.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.Provider)
}
