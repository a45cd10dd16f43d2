package anthropic

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
	registry.Register("anthropic", NewAdapter)
}

const defaultAnthropicVersion = "2023-06-01"

type Adapter struct {
	config domain.ProviderConfig
	client *http.Client
}

func NewAdapter(config domain.ProviderConfig) (ports.ProviderAdapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.Weight == 0 {
		config.Weight = 1.0
	}
	return &Adapter{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (a *Adapter) Name() string    { return a.config.Name }
func (a *Adapter) Model() string   { return a.config.Model }
func (a *Adapter) RPMLimit() int   { return a.config.RPMLimit }
func (a *Adapter) TPMLimit() int   { return a.config.TPMLimit }
func (a *Adapter) Weight() float64 { return a.config.Weight }
func (a *Adapter) Enabled() bool   { return a.config.Enabled }
func (a *Adapter) Close() error    { return nil }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	System    string        `json:"system,omitempty"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireResponse struct {
	Content    []wireContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      wireUsage     `json:"usage"`
}

type wireStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Usage *wireUsage `json:"usage,omitempty"`
}

func (a *Adapter) toWireRequest(req *domain.RouterRequest) wireRequest {
	wr := wireRequest{Model: a.config.Model, MaxTokens: req.MaxTokens}
	if wr.MaxTokens == 0 {
		wr.MaxTokens = 4096
	}
	for _, m := range req.Messages {
		if m.Role == "system" {
			if wr.System != "" {
				wr.System += "\n"
			}
			wr.System += m.Content
			continue
		}
		wr.Messages = append(wr.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	return wr
}

func (a *Adapter) headers() map[string]string {
	version := defaultAnthropicVersion
	if v, ok := a.config.Options["version"]; ok {
		version = v
	}
	return map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": version,
	}
}

func (a *Adapter) Chat(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
	wr := a.toWireRequest(req)
	url := fmt.Sprintf("%s/messages", strings.TrimRight(a.config.BaseURL, "/"))

	var resp wireResponse
	if err := utils.SendRequest(ctx, a.client, "POST", url, a.headers(), wr, &resp); err != nil {
		return nil, utils.ToRouterError(a.Name(), err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	return &domain.ChatResult{
		Content:      text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func (a *Adapter) Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error) {
	ch := make(chan domain.StreamChunk)

	wr := a.toWireRequest(req)
	wr.Stream = true
	url := fmt.Sprintf("%s/messages", strings.TrimRight(a.config.BaseURL, "/"))

	go func() {
		defer close(ch)

		var inputTokens, outputTokens int

		err := utils.StreamRequest(ctx, a.client, "POST", url, a.headers(), wr, func(line string) error {
			if !strings.HasPrefix(line, "data: ") {
				return nil
			}
			data := strings.TrimPrefix(line, "data: ")

			var event wireStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return nil
			}

			switch event.Type {
			case "message_start":
				if event.Usage != nil {
					inputTokens = event.Usage.InputTokens
				}
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" {
					ch <- domain.StreamChunk{Content: event.Delta.Text}
				}
			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				ch <- domain.StreamChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			}
			return nil
		})

		if err != nil {
			ch <- domain.StreamChunk{Err: utils.ToRouterError(a.Name(), err)}
		}
	}()

	return ch, nil
}
