package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmrouter/router/internal/core/domain"
)

// ErrorHandler renders the last error attached to the gin context as an
// RFC 9457 problem-details body. RouterErrors (and anything wrapping one)
// render with their own Kind/status; everything else falls back to 500.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		if rerr, ok := domain.AsRouterError(err); ok {
			problem := rerr.Problem()
			if problem.Status >= http.StatusInternalServerError {
				logger.Error("router error", zap.String("kind", string(rerr.Kind)), zap.Error(err))
			}
			c.JSON(problem.Status, problem)
			c.Abort()
			return
		}

		logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, &domain.Problem{
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
			Detail: "an unexpected error occurred",
		})
		c.Abort()
	}
}
