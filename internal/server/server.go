package server

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/llmrouter/router/internal/config"
	"github.com/llmrouter/router/internal/server/middleware"
	v1 "github.com/llmrouter/router/internal/server/v1"
)

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	svc    v1.RouterService
}

func New(cfg *config.Config, logger *zap.Logger, svc v1.RouterService) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, "2006-01-02T15:04:05Z07:00", true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(otelgin.Middleware("llmrouter"))
	engine.Use(middleware.CORS())

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		svc:    svc,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
