package server

import (
	"github.com/llmrouter/router/internal/server/middleware"
	v1 "github.com/llmrouter/router/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)

	group := s.router.Group("/v1")
	group.Use(middleware.Auth(s.config.Auth.Keys))
	group.Use(limiter.Middleware())
	{
		chatHandler := v1.NewChatHandler(s.svc)
		group.POST("/chat/completions", chatHandler.CreateCompletion)

		statusHandler := v1.NewStatusHandler(s.svc)
		group.GET("/status", statusHandler.Status)
	}
}
