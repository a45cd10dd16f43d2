package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/llmrouter/router/internal/core/domain"
)

// Auth checks for a valid Bearer token in the Authorization header against
// the configured static keys. There is no user/org database in this
// system, so unlike the teacher's Auth this never touches a repository.
func Auth(staticKeys []string) gin.HandlerFunc {
	keyMap := make(map[string]bool, len(staticKeys))
	for _, k := range staticKeys {
		keyMap[k] = true
	}

	return func(c *gin.Context) {
		if len(keyMap) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			problem := domain.NewAuthError("", nil).Problem()
			problem.Detail = "missing Authorization header"
			c.AbortWithStatusJSON(http.StatusUnauthorized, problem)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || !keyMap[parts[1]] {
			problem := domain.NewAuthError("", nil).Problem()
			problem.Detail = "invalid or missing bearer token"
			c.AbortWithStatusJSON(http.StatusUnauthorized, problem)
			return
		}

		c.Next()
	}
}
