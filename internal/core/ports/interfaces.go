package ports

import (
	"context"
	"time"

	"github.com/llmrouter/router/internal/core/domain"
)

// StateBackend stores per-provider sliding-window usage samples and
// session-affinity bindings. Every operation may suspend (network I/O
// for the shared-store implementation) and must be safe under
// concurrent callers.
type StateBackend interface {
	RecordRequest(ctx context.Context, provider string, tokens int, window time.Duration) error
	GetUsage(ctx context.Context, provider string, window time.Duration) (rpm, tpm int, err error)
	GetSessionProvider(ctx context.Context, sessionID string) (provider string, ok bool, err error)
	SetSessionProvider(ctx context.Context, sessionID, provider string, ttl time.Duration) error

	// SetCircuitOpen and IsCircuitOpen back the Circuit Breaker's shared
	// mode. The in-memory backend implements them as no-ops (IsCircuitOpen
	// always reports false) since breaker state there is purely local.
	SetCircuitOpen(ctx context.Context, provider string, ttl time.Duration) error
	IsCircuitOpen(ctx context.Context, provider string) (bool, error)

	Close() error
}

// ProviderAdapter is the closed capability set every vendor adapter
// implements. It never retries internally; translation of backend wire
// errors into domain.ErrorKind happens inside the adapter.
type ProviderAdapter interface {
	Name() string
	Model() string
	RPMLimit() int
	TPMLimit() int
	Weight() float64
	Enabled() bool

	Chat(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error)
	Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error)
	Close() error
}
