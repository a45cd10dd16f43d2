package google

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
	registry.Register("google", NewAdapter)
}

type Adapter struct {
	config domain.ProviderConfig
	client *http.Client
}

func NewAdapter(config domain.ProviderConfig) (ports.ProviderAdapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
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

type wirePart struct {
	Text string `json:"text,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireRequest struct {
	Contents []wireContent `json:"contents"`
}

type wireUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type wireResponse struct {
	Candidates    []wireCandidate   `json:"candidates"`
	UsageMetadata wireUsageMetadata `json:"usageMetadata"`
}

func (a *Adapter) toWireRequest(req *domain.RouterRequest) wireRequest {
	wr := wireRequest{}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" || m.Role == "model" {
			role = "model"
		}
		wr.Contents = append(wr.Contents, wireContent{Role: role, Parts: []wirePart{{Text: m.Content}}})
	}
	return wr
}

func (a *Adapter) Chat(ctx context.Context, req *domain.RouterRequest) (*domain.ChatResult, error) {
	wr := a.toWireRequest(req)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(a.config.BaseURL, "/"), a.config.Model, a.config.APIKey)

	var resp wireResponse
	if err := utils.SendRequest(ctx, a.client, "POST", url, nil, wr, &resp); err != nil {
		return nil, utils.ToRouterError(a.Name(), err)
	}
	if len(resp.Candidates) == 0 {
		return nil, domain.NewServerError(a.Name(), fmt.Errorf("no candidates in response"))
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	return &domain.ChatResult{
		Content:      text.String(),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (a *Adapter) Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error) {
	ch := make(chan domain.StreamChunk)

	wr := a.toWireRequest(req)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		strings.TrimRight(a.config.BaseURL, "/"), a.config.Model, a.config.APIKey)

	go func() {
		defer close(ch)

		var usage wireUsageMetadata

		err := utils.StreamRequest(ctx, a.client, "POST", url, nil, wr, func(line string) error {
			if !strings.HasPrefix(line, "data: ") {
				return nil
			}
			data := strings.TrimPrefix(line, "data: ")

			var resp wireResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				return nil
			}
			if resp.UsageMetadata.PromptTokenCount > 0 || resp.UsageMetadata.CandidatesTokenCount > 0 {
				usage = resp.UsageMetadata
			}
			if len(resp.Candidates) == 0 {
				return nil
			}
			var text strings.Builder
			for _, p := range resp.Candidates[0].Content.Parts {
				text.WriteString(p.Text)
			}
			if text.Len() > 0 {
				ch <- domain.StreamChunk{Content: text.String()}
			}
			if resp.Candidates[0].FinishReason != "" {
				ch <- domain.StreamChunk{Done: true, InputTokens: usage.PromptTokenCount, OutputTokens: usage.CandidatesTokenCount}
			}
			return nil
		})

		if err != nil {
			ch <- domain.StreamChunk{Err: utils.ToRouterError(a.Name(), err)}
		}
	}()

	return ch, nil
}
