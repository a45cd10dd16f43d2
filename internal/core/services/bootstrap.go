package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/logger"
	"go.uber.org/zap"
)

// BootstrapProviders probes every enabled provider in reg with a minimal
// chat call, concurrently and bounded to maxParallel in flight. The
// teacher's main.go registers providers in a sequential for loop with no
// reachability check at all; a single unreachable vendor here never
// blocks the others, and cold-start latency no longer scales with the
// provider count.
func BootstrapProviders(ctx context.Context, reg *ProviderRegistry, maxParallel int, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}

	for _, adapter := range reg.GetAllEnabled() {
		adapter := adapter
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			_, err := adapter.Chat(probeCtx, &domain.RouterRequest{
				Messages:  []domain.Message{{Role: "user", Content: "ping"}},
				MaxTokens: 1,
			})
			if err != nil {
				logger.Warn("bootstrap: health check failed", logger.Provider(adapter.Name()), zap.Error(err))
				return nil
			}
			logger.Info("bootstrap: health check ok", logger.Provider(adapter.Name()))
			return nil
		})
	}

	return g.Wait()
}
