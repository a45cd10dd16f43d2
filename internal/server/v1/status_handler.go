package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type StatusHandler struct {
	router RouterService
}

func NewStatusHandler(router RouterService) *StatusHandler {
	return &StatusHandler{router: router}
}

// Status reports each provider's current RPM/TPM usage, headroom, circuit
// state, and latency EMA.
func (h *StatusHandler) Status(c *gin.Context) {
	snapshot := h.router.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"providers": snapshot})
}
