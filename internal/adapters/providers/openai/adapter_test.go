package openai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llmrouter/router/internal/adapters/providers/openai"
	"github.com/llmrouter/router/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestAdapterChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Hello there!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 12, "total_tokens": 21}
		}`))
	}))
	defer server.Close()

	adapter, err := openai.NewAdapter(domain.ProviderConfig{
		Name:     "openai-test",
		Type:     "openai",
		Model:    "gpt-3.5-turbo",
		APIKey:   "test-key",
		BaseURL:  server.URL + "/v1",
		RPMLimit: 100,
		TPMLimit: 10000,
		Enabled:  true,
	})
	assert.NoError(t, err)

	resp, err := adapter.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "Hi"}},
	})

	assert.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, "Hello there!", resp.Content)
	assert.Equal(t, 9, resp.InputTokens)
	assert.Equal(t, 12, resp.OutputTokens)
	assert.Equal(t, "openai-test", adapter.Name())
}

func TestAdapterChatUpstreamAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	adapter, err := openai.NewAdapter(domain.ProviderConfig{
		Name:     "openai-test",
		Model:    "gpt-3.5-turbo",
		APIKey:   "bad-key",
		BaseURL:  server.URL + "/v1",
		RPMLimit: 100,
		TPMLimit: 10000,
		Enabled:  true,
	})
	assert.NoError(t, err)

	_, err = adapter.Chat(context.Background(), &domain.RouterRequest{
		Messages: []domain.Message{{Role: "user", Content: "Hi"}},
	})

	assert.Error(t, err)
	rerr, ok := domain.AsRouterError(err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindAuthError, rerr.Kind)
}
