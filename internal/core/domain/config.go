package domain

// RoutingWeights is one priority lane's score-component weighting.
// Capacity + Latency + Static must sum to 1.0.
type RoutingWeights struct {
	Capacity float64 `mapstructure:"capacity" json:"capacity"`
	Latency  float64 `mapstructure:"latency" json:"latency"`
	Static   float64 `mapstructure:"static" json:"static"`
}

// DefaultRoutingWeights returns the spec's built-in per-priority profiles.
func DefaultRoutingWeights() map[Priority]RoutingWeights {
	return map[Priority]RoutingWeights{
		PriorityHigh:   {Capacity: 0.5, Latency: 0.4, Static: 0.1},
		PriorityNormal: {Capacity: 0.5, Latency: 0.3, Static: 0.2},
		PriorityLow:    {Capacity: 0.3, Latency: 0.1, Static: 0.6},
	}
}

// CircuitBreakerConfig tunes the per-provider breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold"`
	CooldownSeconds  int `mapstructure:"cooldown_seconds" json:"cooldown_seconds"`
}

// ExhaustionConfig tunes the consumption-rate predictor.
type ExhaustionConfig struct {
	ShortWindowSeconds int     `mapstructure:"short_window_seconds" json:"short_window_seconds"`
	LookaheadSeconds   int     `mapstructure:"lookahead_seconds" json:"lookahead_seconds"`
	Multiplier         float64 `mapstructure:"multiplier" json:"multiplier"`
}

// RouterConfig is the fully-resolved structured configuration the core
// accepts. Every external loader (YAML, env, dict) converges here.
type RouterConfig struct {
	Providers                   []ProviderConfig          `mapstructure:"providers" json:"providers"`
	RoutingWeights               map[Priority]RoutingWeights `mapstructure:"routing_weights" json:"routing_weights,omitempty"`
	CircuitBreaker               CircuitBreakerConfig      `mapstructure:"circuit_breaker" json:"circuit_breaker"`
	WindowSeconds                int                       `mapstructure:"window_seconds" json:"window_seconds"`
	HighPriorityReserveFraction  float64                   `mapstructure:"high_priority_reserve_fraction" json:"high_priority_reserve_fraction"`
	SessionTTLSeconds             int                       `mapstructure:"session_ttl_seconds" json:"session_ttl_seconds"`
	EMAAlpha                      float64                   `mapstructure:"ema_alpha" json:"ema_alpha"`
	Exhaustion                    ExhaustionConfig          `mapstructure:"exhaustion" json:"exhaustion"`
	SharedStoreURL                string                    `mapstructure:"shared_store_url" json:"shared_store_url,omitempty"`
	InitialLatencyMS               float64                   `mapstructure:"initial_latency_ms" json:"initial_latency_ms"`
}

// DefaultRouterConfig returns a config with every spec.md §6 default set,
// and no providers registered.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RoutingWeights:              DefaultRoutingWeights(),
		CircuitBreaker:              CircuitBreakerConfig{FailureThreshold: 5, CooldownSeconds: 30},
		WindowSeconds:               60,
		HighPriorityReserveFraction: 0.2,
		SessionTTLSeconds:           3600,
		EMAAlpha:                    0.2,
		Exhaustion:                  ExhaustionConfig{ShortWindowSeconds: 30, LookaheadSeconds: 120, Multiplier: 1.5},
		InitialLatencyMS:            500.0,
	}
}

// WeightsFor returns the configured weights for a priority, falling back
// to the spec default profile if the config left it unset.
func (c RouterConfig) WeightsFor(p Priority) RoutingWeights {
	if c.RoutingWeights != nil {
		if w, ok := c.RoutingWeights[p]; ok {
			return w
		}
	}
	return DefaultRoutingWeights()[p]
}
