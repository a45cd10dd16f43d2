package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/llmrouter/router/internal/adapters/providers/utils"
	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/core/ports"
	"github.com/llmrouter/router/internal/registry"
)

func init() {
	registry.Register("openai", NewAdapter)
}

// Adapter speaks the OpenAI chat-completions wire format. Any vendor
// that exposes an OpenAI-compatible /chat/completions endpoint (Groq,
// DeepSeek, Together, self-hosted gateways) can be configured with
// type: "openai" and a different base_url; Ollama reuses this adapter
// directly for the same reason.
type Adapter struct {
	config domain.ProviderConfig
	client *http.Client
}

func NewAdapter(config domain.ProviderConfig) (ports.ProviderAdapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Weight == 0 {
		config.Weight = 1.0
	}
	return &Adapter{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (a *Adapter) Name() string     { return a.config.Name }
func (a *Adapter) Model() string    { return a.config.Model }
func (a *Adapter) RPMLimit() int    { return a.config.RPMLimit }
func (a *Adapter) TPMLimit() int    { return a.config.TPMLimit }
func (a *Adapter) Weight() float64  { return a.config.Weight }
func (a *Adapter) Enabled() bool    { return a.config.Enabled }
func (a *Adapter) Close() error     { return nil }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type wireRequest struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   float64       `json:"temperature,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	StreamOptions *streamOpts   `json:"stream_options,omitempty"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage wireUsage `json:"usage"`
}

type wireStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

func (a *Adapter) toWireMessages(req *domain.RouterRequest) []wireMessage {
	out := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		out[i] = wireMessage{Role: m.Role, Content: m.Content, Name: m.Name}
	}
	return out
}

func (a *Adapter) headers() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + a.config.APIKey}
	if org, ok := a.config.Options["organization"]; ok {
		h["OpenAI-Organization"] = org
	}
	return h
}

func (a *Adapter) Chat(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
	wr := wireRequest{
		Model:       a.config.Model,
		Messages:    a.toWireMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(a.config.BaseURL, "/"))

	var resp wireResponse
	if err := utils.SendRequest(ctx, a.client, "POST", url, a.headers(), wr, &resp); err != nil {
		return nil, utils.ToRouterError(a.Name(), err)
	}

	if len(resp.Choices) == 0 {
		return nil, domain.NewServerError(a.Name(), fmt.Errorf("no choices in response"))
	}

	return &domain.ChatResult{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (a *Adapter) Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error) {
	ch := make(chan domain.StreamChunk)

	wr := wireRequest{
		Model:         a.config.Model,
		Messages:      a.toWireMessages(req),
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: &streamOpts{IncludeUsage: true},
	}
	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(a.config.BaseURL, "/"))

	go func() {
		defer close(ch)

		var lastUsage *wireUsage

		err := utils.StreamRequest(ctx, a.client, "POST", url, a.headers(), wr, func(line string) error {
			if !strings.HasPrefix(line, "data: ") {
				return nil
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				in, out := 0, 0
				if lastUsage != nil {
					in, out = lastUsage.PromptTokens, lastUsage.CompletionTokens
				}
				ch <- domain.StreamChunk{Done: true, InputTokens: in, OutputTokens: out}
				return nil
			}

			var chunk wireStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil
			}
			if chunk.Usage != nil {
				lastUsage = chunk.Usage
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- domain.StreamChunk{Content: chunk.Choices[0].Delta.Content}
			}
			return nil
		})

		if err != nil {
			ch <- domain.StreamChunk{Err: utils.ToRouterError(a.Name(), err)}
		}
	}()

	return ch, nil
}
