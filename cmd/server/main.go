package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/llmrouter/router/internal/audit"
	"github.com/llmrouter/router/internal/config"
	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/core/ports"
	"github.com/llmrouter/router/internal/core/services"
	"github.com/llmrouter/router/internal/logger"
	"github.com/llmrouter/router/internal/platform/otel"
	"github.com/llmrouter/router/internal/server"
	"github.com/llmrouter/router/internal/server/validator"
	"github.com/llmrouter/router/internal/state/memory"
	"github.com/llmrouter/router/internal/state/redisstate"

	"github.com/redis/go-redis/v9"

	// Import providers to trigger init() registration with the factory.
	_ "github.com/llmrouter/router/internal/adapters/providers/anthropic"
	_ "github.com/llmrouter/router/internal/adapters/providers/google"
	_ "github.com/llmrouter/router/internal/adapters/providers/ollama"
	_ "github.com/llmrouter/router/internal/adapters/providers/openai"
)

// newStateBackend selects the in-process or shared-store StateBackend.
// A non-empty Router.SharedStoreURL is parsed as a redis:// URL and
// switches the router into shared (multi-instance) mode for both usage
// windows and circuit-breaker state. Without it, redis.enabled in
// config.yaml selects a Redis backend built from the cfg.Redis
// connection details; usage windows and sessions are then shared, but
// circuit-breaker state stays in-process, since NewRouter turns on
// shared breaker mode only when SharedStoreURL is set.
func newStateBackend(cfg *config.Config, log *zap.Logger) (ports.StateBackend, error) {
	if cfg.Router.SharedStoreURL == "" && !cfg.Redis.Enabled {
		log.Info("using in-memory state backend")
		return memory.New(), nil
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if cfg.Router.SharedStoreURL != "" {
		parsed, err := redis.ParseURL(cfg.Router.SharedStoreURL)
		if err != nil {
			return nil, fmt.Errorf("parsing shared_store_url: %w", err)
		}
		opts = parsed
	}

	log.Info("using redis state backend", zap.String("addr", opts.Addr))
	return redisstate.New(redis.NewClient(opts)), nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger.Initialize(cfg.Server.Env)
	log := logger.Get()
	defer logger.Sync()

	validator.Init()

	shutdownTracer, err := otel.InitTracer("llmrouter", log, os.Stderr)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}

	state, err := newStateBackend(cfg, log)
	if err != nil {
		log.Fatal("failed to construct state backend", zap.Error(err))
	}

	var sink *audit.Sink
	if cfg.Audit.DSN != "" {
		sink, err = audit.Open(cfg.Audit.DSN, log)
		if err != nil {
			log.Warn("audit sink disabled: failed to open", zap.Error(err))
			sink = nil
		}
	}

	onRoute := func(ev domain.RouteEvent) {
		log.Debug("route event",
			zap.String("provider", ev.Provider),
			zap.Float64("latency_ms", ev.LatencyMS),
			zap.Int("attempts", ev.Attempts),
			zap.Bool("success", ev.Success),
		)
		if sink != nil {
			sink.Record(ev)
		}
	}

	router, err := services.NewRouter(cfg.Router, state, onRoute)
	if err != nil {
		log.Fatal("failed to construct router", zap.Error(err))
	}

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 30*time.Second)
	if err := services.BootstrapProviders(bootstrapCtx, router.Registry(), 4, 5*time.Second); err != nil {
		log.Warn("provider bootstrap reported errors", zap.Error(err))
	}
	cancelBootstrap()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if err := router.Start(startCtx); err != nil {
		log.Fatal("failed to start router", zap.Error(err))
	}
	cancelStart()

	srv := server.New(cfg, log, router)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting llmrouter", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if err := router.Close(shutdownCtx); err != nil {
		log.Error("router close error", zap.Error(err))
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Error("audit sink close error", zap.Error(err))
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown error", zap.Error(err))
	}
}
