package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/server/validator"
)

// RouterService is the subset of *services.Router the HTTP layer drives.
// Kept as an interface so handlers can be tested against a fake.
type RouterService interface {
	Chat(ctx context.Context, req *domain.RouterRequest) (*domain.RouterResponse, error)
	Stream(ctx context.Context, req *domain.RouterRequest) (<-chan domain.StreamChunk, error)
	Status(ctx context.Context) map[string]domain.ProviderSnapshot
}

type ChatHandler struct {
	router RouterService
}

func NewChatHandler(router RouterService) *ChatHandler {
	return &ChatHandler{router: router}
}

func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req domain.RouterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validator.ParseError(err)
		b, _ := json.Marshal(fields)
		_ = c.Error(domain.NewBadRequest("", fmt.Errorf("validation failed: %s", b)))
		return
	}

	if req.Stream {
		h.handleStream(c, &req)
		return
	}

	resp, err := h.router.Chat(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) handleStream(c *gin.Context, req *domain.RouterRequest) {
	streamChan, err := h.router.Stream(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-streamChan
		if !ok {
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return false
		}

		if chunk.Err != nil {
			data, _ := json.Marshal(gin.H{"error": chunk.Err.Error()})
			_, werr := fmt.Fprintf(w, "data: %s\n\n", data)
			return werr == nil && false
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			return true
		}
		_, werr := fmt.Fprintf(w, "data: %s\n\n", data)
		if chunk.Done {
			return false
		}
		return werr == nil
	})
}
