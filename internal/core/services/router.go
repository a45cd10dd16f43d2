package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/core/ports"
	"github.com/llmrouter/router/internal/logger"
	"github.com/llmrouter/router/internal/platform/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Router is the top-level orchestrator: it wires the State Backend,
// Latency Tracker, Exhaustion Predictor, Scorer, Circuit Breaker, and
// Provider Registry into the per-request routing pipeline.
type Router struct {
	cfg       domain.RouterConfig
	registry  *ProviderRegistry
	state     ports.StateBackend
	latency   *LatencyTracker
	predictor *ExhaustionPredictor
	breaker   *CircuitBreaker
	scorer    *Scorer
	onRoute   func(domain.RouteEvent)

	windowSeconds time.Duration
	sessionTTL    time.Duration

	mu      sync.Mutex
	started bool
	pending []ports.ProviderAdapter
}

// NewRouter builds a Router from a resolved configuration. Providers
// declared in cfg.Providers are registered immediately; BYOC adapters
// registered afterward via RegisterBYOC are queued until Start is
// called if the router has not started yet, mirroring the originating
// system's lazy registration queue.
func NewRouter(cfg domain.RouterConfig, state ports.StateBackend, onRoute func(domain.RouteEvent)) (*Router, error) {
	reg := NewProviderRegistry()
	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		if err := reg.RegisterFromConfig(pc); err != nil {
			return nil, fmt.Errorf("router: registering provider %q: %w", pc.Name, err)
		}
	}

	var shared ports.StateBackend
	if cfg.SharedStoreURL != "" {
		shared = state
	}

	return &Router{
		cfg:           cfg,
		registry:      reg,
		state:         state,
		latency:       NewLatencyTracker(cfg.EMAAlpha),
		predictor:     NewExhaustionPredictor(cfg.Exhaustion.ShortWindowSeconds, cfg.Exhaustion.LookaheadSeconds, cfg.Exhaustion.Multiplier),
		breaker:       NewCircuitBreaker(cfg.CircuitBreaker.FailureThreshold, time.Duration(cfg.CircuitBreaker.CooldownSeconds)*time.Second, shared),
		scorer:        NewScorer(cfg),
		onRoute:       onRoute,
		windowSeconds: time.Duration(cfg.WindowSeconds) * time.Second,
		sessionTTL:    time.Duration(cfg.SessionTTLSeconds) * time.Second,
	}, nil
}

// Registry exposes the provider registry for bootstrap-time health
// checks. Callers must not register providers through it after Start.
func (r *Router) Registry() *ProviderRegistry {
	return r.registry
}

// RegisterBYOC installs a caller-provided adapter. If the router has
// not started yet, registration is queued and flushed on Start.
func (r *Router) RegisterBYOC(adapter ports.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		r.registry.RegisterBYOC(adapter)
		return
	}
	r.pending = append(r.pending, adapter)
}

// Start flushes any BYOC adapters queued before construction settled.
// Safe to call once; later calls are no-ops.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	for _, a := range r.pending {
		r.registry.RegisterBYOC(a)
	}
	r.pending = nil
	r.started = true
	return nil
}

// Close releases every registered adapter and the state backend.
func (r *Router) Close(ctx context.Context) error {
	if err := r.registry.CloseAll(ctx); err != nil {
		return err
	}
	return r.state.Close()
}

// Chat routes a single request through the fallback loop described in
// spec.md §4.9, returning the first successful response or a terminal
// AllProvidersFailed/NoProvidersConfigured error (NoEligibleProvider when
// a forced provider is unknown or disabled; the context's error when ctx
// is cancelled).
func (r *Router) Chat(ctx context.Context, req *domain.RouterRequest) (*domain.RouterResponse, error) {
	if r.registry.Len() == 0 {
		return nil, domain.NewNoProvidersConfigured()
	}

	estimatedTokens := EstimateTokens(req.Messages)
	candidates, err := r.resolveCandidates(ctx, req, estimatedTokens)
	if err != nil {
		return nil, err
	}

	priority := req.EffectivePriority()
	boundProvider := r.boundSessionProvider(ctx, req.SessionID)

	var attemptErrors []domain.AttemptError
	attempts := 0

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := r.breaker.Guard(ctx, candidate.Name()); err != nil {
			continue
		}
		attempts++

		attemptCtx, endAttempt := otel.StartRouteAttempt(ctx, candidate.Name(), candidate.Model(), string(priority), attempts)
		start := time.Now()
		result, callErr := candidate.Chat(attemptCtx, req)
		endAttempt(callErr)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

		if callErr == nil {
			tokens := result.InputTokens + result.OutputTokens
			r.recordSuccess(ctx, candidate, req, tokens, latencyMS, boundProvider)
			logger.Debug("chat routed", logger.RouteOutcome(candidate.Name(), attempts, latencyMS, true)...)
			r.emit(domain.RouteEvent{
				Provider: candidate.Name(), LatencyMS: latencyMS, Attempts: attempts,
				Priority: priority, SessionID: req.SessionID, Success: true,
			})
			return &domain.RouterResponse{
				Content:      result.Content,
				Provider:     candidate.Name(),
				Model:        candidate.Model(),
				LatencyMS:    latencyMS,
				Attempts:     attempts,
				InputTokens:  result.InputTokens,
				OutputTokens: result.OutputTokens,
			}, nil
		}

		kind := classifyError(callErr)
		r.breaker.RecordFailure(ctx, candidate.Name())
		attemptErrors = append(attemptErrors, domain.AttemptError{
			Provider: candidate.Name(), Kind: kind, Message: callErr.Error(),
		})

		if !kind.Retriable() {
			r.emit(domain.RouteEvent{
				Provider: candidate.Name(), LatencyMS: latencyMS, Attempts: attempts,
				Priority: priority, SessionID: req.SessionID, Success: false, ErrorKind: kind,
			})
			return nil, domain.NewAllProvidersFailed(attemptErrors)
		}
	}

	r.emit(domain.RouteEvent{
		Attempts: attempts, Priority: priority, SessionID: req.SessionID,
		Success: false, ErrorKind: domain.KindAllProvidersFailed,
	})
	return nil, domain.NewAllProvidersFailed(attemptErrors)
}

// Stream is analogous to Chat, except the success path begins as soon
// as the first fragment is produced. Fallback across providers is only
// possible before any fragment has reached the caller; once streaming
// has started, a mid-stream error surfaces as-is.
func (r *Router) Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error) {
	if r.registry.Len() == 0 {
		return nil, domain.NewNoProvidersConfigured()
	}

	estimatedTokens := EstimateTokens(req.Messages)
	candidates, err := r.resolveCandidates(ctx, req, estimatedTokens)
	if err != nil {
		return nil, err
	}

	priority := req.EffectivePriority()
	boundProvider := r.boundSessionProvider(ctx, req.SessionID)
	out := make(chan domain.StreamChunk)

	go func() {
		var g errgroup.Group
		defer func() {
			_ = g.Wait()
			close(out)
		}()

		var attemptErrors []domain.AttemptError
		attempts := 0

		for _, candidate := range candidates {
			if ctx.Err() != nil {
				return
			}
			if err := r.breaker.Guard(ctx, candidate.Name()); err != nil {
				continue
			}
			attempts++

			start := time.Now()
			upstream, err := candidate.Stream(ctx, req)
			if err != nil {
				kind := classifyError(err)
				r.breaker.RecordFailure(ctx, candidate.Name())
				attemptErrors = append(attemptErrors, domain.AttemptError{
					Provider: candidate.Name(), Kind: kind, Message: err.Error(),
				})
				if !kind.Retriable() {
					out <- domain.StreamChunk{Err: domain.NewAllProvidersFailed(attemptErrors)}
					return
				}
				continue
			}

			started := false
			fellThrough := false

			for chunk := range upstream {
				if ctx.Err() != nil {
					return
				}
				if chunk.Err != nil {
					r.breaker.RecordFailure(ctx, candidate.Name())
					if !started {
						kind := classifyError(chunk.Err)
						attemptErrors = append(attemptErrors, domain.AttemptError{
							Provider: candidate.Name(), Kind: kind, Message: chunk.Err.Error(),
						})
						if !kind.Retriable() {
							out <- domain.StreamChunk{Err: domain.NewAllProvidersFailed(attemptErrors)}
							return
						}
						fellThrough = true
						break
					}
					out <- chunk
					return
				}

				started = true
				out <- chunk

				if chunk.Done {
					latencyMS := float64(time.Since(start)) / float64(time.Millisecond)
					tokens := chunk.InputTokens + chunk.OutputTokens
					candidateName := candidate.Name()
					g.Go(func() error {
						r.recordSuccess(ctx, candidate, req, tokens, latencyMS, boundProvider)
						r.emit(domain.RouteEvent{
							Provider: candidateName, LatencyMS: latencyMS, Attempts: attempts,
							Priority: priority, SessionID: req.SessionID, Success: true,
						})
						return nil
					})
					return
				}
			}

			if !fellThrough {
				return
			}
		}

		r.emit(domain.RouteEvent{
			Attempts: attempts, Priority: priority, SessionID: req.SessionID,
			Success: false, ErrorKind: domain.KindAllProvidersFailed,
		})
		out <- domain.StreamChunk{Err: domain.NewAllProvidersFailed(attemptErrors)}
	}()

	return out, nil
}

// Status returns the per-provider snapshot described in spec.md §4.9.
func (r *Router) Status(ctx context.Context) map[string]domain.ProviderSnapshot {
	out := make(map[string]domain.ProviderSnapshot)
	for _, a := range r.registry.GetAllEnabled() {
		rpm, tpm, err := r.state.GetUsage(ctx, a.Name(), r.windowSeconds)
		if err != nil {
			logger.Warn("status: usage lookup failed", logger.Provider(a.Name()), zap.Error(err))
		}
		lat, _ := r.latency.Get(a.Name())
		cs := r.breaker.Status(a.Name())

		out[a.Name()] = domain.ProviderSnapshot{
			Provider:     a.Name(),
			RPMUsed:      rpm,
			RPMLimit:     a.RPMLimit(),
			TPMUsed:      tpm,
			TPMLimit:     a.TPMLimit(),
			HeadroomPct:  min2(headroom(rpm, a.RPMLimit()), headroom(tpm, a.TPMLimit())) * 100,
			CircuitOpen:  cs.State == domain.CircuitOpen,
			AvgLatencyMS: lat,
		}
	}
	return out
}

func (r *Router) recordSuccess(ctx context.Context, candidate ports.ProviderAdapter, req *domain.RouterRequest, tokens int, latencyMS float64, boundProvider string) {
	// A failed sample write is retried once and then dropped; it never
	// fails a call the adapter already served.
	if err := r.state.RecordRequest(ctx, candidate.Name(), tokens, r.windowSeconds); err != nil {
		if err = r.state.RecordRequest(ctx, candidate.Name(), tokens, r.windowSeconds); err != nil {
			logger.Warn("record request failed", logger.Provider(candidate.Name()), zap.Error(err))
		}
	}
	r.latency.Observe(candidate.Name(), latencyMS)
	r.predictor.Record(candidate.Name(), tokens, time.Now())
	r.breaker.RecordSuccess(candidate.Name())

	// A session is (re)bound whenever the serving provider differs from
	// whatever it is currently bound to -- not only when there was no
	// prior binding. Without this, a session whose bound provider has
	// since tripped its circuit and fallen through to a different
	// provider would keep pointing at the unhealthy one forever.
	if req.SessionID != "" && boundProvider != candidate.Name() {
		if err := r.state.SetSessionProvider(ctx, req.SessionID, candidate.Name(), r.sessionTTL); err != nil {
			logger.Warn("session bind failed", logger.Provider(candidate.Name()), zap.Error(err))
		}
	}
}

// boundSessionProvider returns the provider currently bound to
// sessionID, or "" if sessionID is empty or has no unexpired binding.
func (r *Router) boundSessionProvider(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		return ""
	}
	provider, ok, err := r.state.GetSessionProvider(ctx, sessionID)
	if err != nil || !ok {
		return ""
	}
	return provider
}

// resolveCandidates implements spec.md §4.9 step 2: forced pinning (with
// fallback on failure), then session affinity, then the Scorer-ranked
// list. Providers the Scorer drops (no headroom, at risk, unreadable
// usage) are not candidates.
func (r *Router) resolveCandidates(ctx context.Context, req *domain.RouterRequest, estimatedTokens int) ([]ports.ProviderAdapter, error) {
	priority := req.EffectivePriority()

	if req.ForceProvider != "" {
		forced, ok := r.registry.Get(req.ForceProvider)
		if !ok || !forced.Enabled() {
			return nil, domain.NewNoEligibleProvider()
		}
		fallback := r.rankFallback(ctx, req, estimatedTokens, priority, req.ForceProvider)
		return append([]ports.ProviderAdapter{forced}, fallback...), nil
	}

	enabled := r.registry.GetAllEnabled()
	if len(enabled) == 0 {
		return nil, domain.NewAllProvidersFailed(nil)
	}

	var sessionAdapter ports.ProviderAdapter
	if req.SessionID != "" {
		if providerName, ok, err := r.state.GetSessionProvider(ctx, req.SessionID); err == nil && ok {
			if a, exists := r.registry.Get(providerName); exists && a.Enabled() {
				sessionAdapter = a
			}
		}
	}

	rankedNames := r.rank(ctx, enabled, req, estimatedTokens, priority)

	seen := make(map[string]bool, len(enabled))
	var out []ports.ProviderAdapter

	if sessionAdapter != nil {
		out = append(out, sessionAdapter)
		seen[sessionAdapter.Name()] = true
	}
	for _, name := range rankedNames {
		if seen[name] {
			continue
		}
		if a, ok := r.registry.Get(name); ok {
			out = append(out, a)
			seen[name] = true
		}
	}

	if len(out) == 0 {
		return nil, domain.NewAllProvidersFailed(nil)
	}
	return out, nil
}

func (r *Router) rank(ctx context.Context, enabled []ports.ProviderAdapter, req *domain.RouterRequest, estimatedTokens int, priority domain.Priority) []string {
	usage := make(map[string]ProviderUsage, len(enabled))
	atRisk := make(map[string]bool, len(enabled))
	now := time.Now()

	for _, a := range enabled {
		u := ProviderUsage{}
		rpm, tpm, err := r.state.GetUsage(ctx, a.Name(), r.windowSeconds)
		if err != nil {
			logger.Warn("usage lookup failed", logger.Provider(a.Name()), zap.Error(err))
		} else {
			u.HasUsage = true
			u.RPMUsed = rpm
			u.TPMUsed = tpm
		}
		if lat, ok := r.latency.Get(a.Name()); ok {
			u.HasLatency = true
			u.LatencyMS = lat
		}
		usage[a.Name()] = u
		atRisk[a.Name()] = r.predictor.IsAtRisk(a.Name(), a.RPMLimit(), a.TPMLimit(), now)
	}

	candidates := make([]portsLikeAdapter, len(enabled))
	for i, a := range enabled {
		candidates[i] = a
	}

	scored := r.scorer.Rank(candidates, usage, estimatedTokens, priority, atRisk)
	names := make([]string, len(scored))
	for i, s := range scored {
		names[i] = s.Provider
	}
	return names
}

func (r *Router) rankFallback(ctx context.Context, req *domain.RouterRequest, estimatedTokens int, priority domain.Priority, exclude string) []ports.ProviderAdapter {
	enabled := r.registry.GetAllEnabled()
	filtered := make([]ports.ProviderAdapter, 0, len(enabled))
	for _, a := range enabled {
		if a.Name() != exclude {
			filtered = append(filtered, a)
		}
	}
	names := r.rank(ctx, filtered, req, estimatedTokens, priority)
	out := make([]ports.ProviderAdapter, 0, len(names))
	for _, n := range names {
		if a, ok := r.registry.Get(n); ok {
			out = append(out, a)
		}
	}
	return out
}

func (r *Router) emit(ev domain.RouteEvent) {
	if r.onRoute == nil {
		return
	}
	defer func() { _ = recover() }()
	r.onRoute(ev)
}

func classifyError(err error) domain.ErrorKind {
	if re, ok := domain.AsRouterError(err); ok {
		return re.Kind
	}
	return domain.KindServerError
}
