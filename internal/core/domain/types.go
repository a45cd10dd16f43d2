package domain

import (
	"encoding/json"
	"time"
)

// Priority is a request's scheduling lane. It controls scoring weights,
// at-risk exclusion, and high-priority reserve enforcement.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the three recognized lanes.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Message is a single role-tagged turn in a chat request. Extra carries
// passthrough fields the router never interprets but forwards verbatim
// to the adapter (tool_call_id, name, vendor-specific extensions, ...).
type Message struct {
	Role       string                     `json:"role" binding:"required"`
	Content    string                     `json:"content"`
	Name       string                     `json:"name,omitempty"`
	ToolCallID string                     `json:"tool_call_id,omitempty"`
	Extra      map[string]json.RawMessage `json:"-"`
}

// ProviderConfig is the immutable declaration of a provider's identity,
// quotas, and credentials. ProviderConfigs are created at router
// construction and are read-only thereafter.
type ProviderConfig struct {
	Name      string            `mapstructure:"name" json:"name" validate:"required"`
	Type      string            `mapstructure:"type" json:"type" validate:"required"`
	Model     string            `mapstructure:"model" json:"model" validate:"required"`
	BaseURL   string            `mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey    string            `mapstructure:"api_key" json:"-"`
	RPMLimit  int               `mapstructure:"rpm_limit" json:"rpm_limit" validate:"required,gt=0"`
	TPMLimit  int               `mapstructure:"tpm_limit" json:"tpm_limit" validate:"required,gt=0"`
	Weight    float64           `mapstructure:"weight" json:"weight"`
	Enabled   bool              `mapstructure:"enabled" json:"enabled"`
	Options   map[string]string `mapstructure:"options" json:"options,omitempty"`
}

// RouterRequest is the input to a single chat or stream call.
type RouterRequest struct {
	Messages      []Message         `json:"messages" binding:"required,min=1,dive"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   float64           `json:"temperature,omitempty"`
	Priority      Priority          `json:"priority,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	ForceProvider string            `json:"force_provider,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
}

// EffectivePriority returns the request priority, defaulting to normal.
func (r *RouterRequest) EffectivePriority() Priority {
	if r.Priority == "" {
		return PriorityNormal
	}
	return r.Priority
}

// RouterResponse is returned from a successful Chat call.
type RouterResponse struct {
	Content      string  `json:"content"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	LatencyMS    float64 `json:"latency_ms"`
	Attempts     int     `json:"attempts"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// ChatResult is what a ProviderAdapter returns from a single Chat call.
type ChatResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// StreamChunk is one element of an adapter's stream. Err, if non-nil,
// terminates the stream. Done marks the final chunk, which carries the
// adapter's final token accounting.
type StreamChunk struct {
	Content      string
	Done         bool
	InputTokens  int
	OutputTokens int
	Err          error
}

// UsageSample is a single (timestamp, token_count) observation appended
// to a provider's sliding window on every successful completion.
type UsageSample struct {
	Timestamp time.Time
	Tokens    int
}

// SessionBinding sticks a session to a provider until ExpiresAt.
type SessionBinding struct {
	SessionID string
	Provider  string
	ExpiresAt time.Time
}

// Expired reports whether the binding is no longer authoritative at t.
func (b SessionBinding) Expired(t time.Time) bool {
	return !t.Before(b.ExpiresAt)
}

// CircuitStatus is the externally observable state of a breaker.
type CircuitStatus string

const (
	CircuitClosed CircuitStatus = "CLOSED"
	CircuitOpen   CircuitStatus = "OPEN"
)

// CircuitState is the per-provider breaker snapshot.
type CircuitState struct {
	State        CircuitStatus
	FailureCount int
	OpenUntil    time.Time
}

// RouteEvent is the observability record emitted after each routed
// request's attempt sequence, successful or not.
type RouteEvent struct {
	Provider  string
	LatencyMS float64
	Attempts  int
	Priority  Priority
	SessionID string
	Success   bool
	ErrorKind ErrorKind
}

// ProviderSnapshot is one entry of Router.Status()'s per-provider view.
type ProviderSnapshot struct {
	Provider     string  `json:"provider"`
	RPMUsed      int     `json:"rpm_used"`
	RPMLimit     int     `json:"rpm_limit"`
	TPMUsed      int     `json:"tpm_used"`
	TPMLimit     int     `json:"tpm_limit"`
	HeadroomPct  float64 `json:"headroom_pct"`
	CircuitOpen  bool    `json:"circuit_open"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}
