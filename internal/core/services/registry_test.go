package services

import (
	"context"
	"testing"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestProviderRegistry_RegistrationIsIdempotentByName(t *testing.T) {
	reg := NewProviderRegistry()

	reg.RegisterPrebuiltAdapter(&stubAdapter{name: "A", weight: 1.0})
	reg.RegisterPrebuiltAdapter(&stubAdapter{name: "A", weight: 2.0})

	assert.Equal(t, 1, reg.Len())
	a, ok := reg.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 2.0, a.Weight())
}

func TestProviderRegistry_GetAllEnabled_FiltersDisabled(t *testing.T) {
	reg := NewProviderRegistry()
	reg.RegisterPrebuiltAdapter(&stubAdapter{name: "A", enabled: true})
	reg.RegisterPrebuiltAdapter(&stubAdapter{name: "B", enabled: false})

	enabled := reg.GetAllEnabled()
	assert.Len(t, enabled, 1)
	assert.Equal(t, "A", enabled[0].Name())
}

func TestProviderRegistry_GetAllEnabled_SortedByName(t *testing.T) {
	reg := NewProviderRegistry()
	reg.RegisterPrebuiltAdapter(&stubAdapter{name: "zeta", enabled: true})
	reg.RegisterPrebuiltAdapter(&stubAdapter{name: "alpha", enabled: true})

	enabled := reg.GetAllEnabled()
	assert.Equal(t, []string{"alpha", "zeta"}, []string{enabled[0].Name(), enabled[1].Name()})
}

func TestProviderRegistry_CloseAll(t *testing.T) {
	reg := NewProviderRegistry()
	a := &stubAdapter{name: "A", enabled: true}
	reg.RegisterPrebuiltAdapter(a)
	assert.NoError(t, reg.CloseAll(context.Background()))
	assert.True(t, a.closed)
}

// stubAdapter is a minimal ports.ProviderAdapter for registry and
// router tests; its Chat/Stream behavior is scripted per test case.
type stubAdapter struct {
	name     string
	model    string
	rpm      int
	tpm      int
	weight   float64
	enabled  bool
	closed   bool

	chatFn   func(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error)
	streamFn func(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error)
}

func (s *stubAdapter) Name() string    { return s.name }
func (s *stubAdapter) Model() string   { return s.model }
func (s *stubAdapter) RPMLimit() int   { return s.rpm }
func (s *stubAdapter) TPMLimit() int   { return s.tpm }
func (s *stubAdapter) Weight() float64 { return s.weight }
func (s *stubAdapter) Enabled() bool   { return s.enabled }
func (s *stubAdapter) Close() error    { s.closed = true; return nil }

func (s *stubAdapter) Chat(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
	if s.chatFn != nil {
		return s.chatFn(ctx, req)
	}
	return &domain.ChatResult{Content: "ok from " + s.name, InputTokens: 1, OutputTokens: 1}, nil
}

func (s *stubAdapter) Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error) {
	if s.streamFn != nil {
		return s.streamFn(ctx, req)
	}
	ch := make(chan domain.StreamChunk, 1)
	ch <- domain.StreamChunk{Done: true, InputTokens: 1, OutputTokens: 1}
	close(ch)
	return ch, nil
}
