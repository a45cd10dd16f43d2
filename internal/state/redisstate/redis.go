package redisstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/llmrouter/router/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

// Backend is the shared-store StateBackend, built on Redis sorted sets.
// RPM and TPM windows are parallel sorted sets scored by timestamp; TPM
// members additionally encode the token count and a uuid nonce so two
// samples landing on the same millisecond never collide. Every mutating
// call is one pipeline that purges stale members, adds the new one, and
// refreshes a TTL of at least 2x the window as a safety net against an
// instance crashing before a purge ever runs again.
type Backend struct {
	client redis.Cmdable
}

// New wraps an existing redis.Cmdable (a *redis.Client or *redis.ClusterClient).
func New(client redis.Cmdable) *Backend {
	return &Backend{client: client}
}

func rpmKey(provider string) string     { return "usage:rpm:" + provider }
func tpmKey(provider string) string     { return "usage:tpm:" + provider }
func circuitKey(provider string) string { return "circuit:" + provider }
func sessionKey(sessionID string) string { return "session:" + sessionID }

func (b *Backend) RecordRequest(ctx context.Context, provider string, tokens int, window time.Duration) error {
	now := time.Now()
	cutoff := now.Add(-window)
	ttl := 2 * window

	rk, tk := rpmKey(provider), tpmKey(provider)
	rpmMember := uuid.NewString()
	tpmMember := fmt.Sprintf("%d:%d:%s", now.UnixNano(), tokens, uuid.NewString())

	_, err := b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, rk, "-inf", exclusiveUpper(cutoff))
		p.ZAdd(ctx, rk, redis.Z{Score: float64(now.UnixNano()), Member: rpmMember})
		p.Expire(ctx, rk, ttl)

		p.ZRemRangeByScore(ctx, tk, "-inf", exclusiveUpper(cutoff))
		p.ZAdd(ctx, tk, redis.Z{Score: float64(now.UnixNano()), Member: tpmMember})
		p.Expire(ctx, tk, ttl)
		return nil
	})
	if err != nil {
		return domain.NewStateBackendUnavailable(provider, err)
	}
	return nil
}

func (b *Backend) GetUsage(ctx context.Context, provider string, window time.Duration) (rpm, tpm int, err error) {
	now := time.Now()
	cutoff := now.Add(-window)
	minScore := strconv.FormatInt(cutoff.UnixNano(), 10)

	rk, tk := rpmKey(provider), tpmKey(provider)

	rpmCmd := b.client.ZRangeByScore(ctx, rk, &redis.ZRangeBy{Min: minScore, Max: "+inf"})
	tpmCmd := b.client.ZRangeByScore(ctx, tk, &redis.ZRangeBy{Min: minScore, Max: "+inf"})

	rpmMembers, rErr := rpmCmd.Result()
	if rErr != nil {
		return 0, 0, domain.NewStateBackendUnavailable(provider, rErr)
	}
	tpmMembers, tErr := tpmCmd.Result()
	if tErr != nil {
		return 0, 0, domain.NewStateBackendUnavailable(provider, tErr)
	}

	rpm = len(rpmMembers)
	for _, m := range tpmMembers {
		parts := strings.Split(m, ":")
		if len(parts) < 3 {
			continue
		}
		n, convErr := strconv.Atoi(parts[1])
		if convErr != nil {
			continue
		}
		tpm += n
	}
	return rpm, tpm, nil
}

func (b *Backend) GetSessionProvider(ctx context.Context, sessionID string) (string, bool, error) {
	val, err := b.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewStateBackendUnavailable("", err)
	}
	return val, true, nil
}

func (b *Backend) SetSessionProvider(ctx context.Context, sessionID, provider string, ttl time.Duration) error {
	if err := b.client.Set(ctx, sessionKey(sessionID), provider, ttl).Err(); err != nil {
		return domain.NewStateBackendUnavailable(provider, err)
	}
	return nil
}

func (b *Backend) SetCircuitOpen(ctx context.Context, provider string, ttl time.Duration) error {
	if err := b.client.Set(ctx, circuitKey(provider), "1", ttl).Err(); err != nil {
		return domain.NewStateBackendUnavailable(provider, err)
	}
	return nil
}

func (b *Backend) IsCircuitOpen(ctx context.Context, provider string) (bool, error) {
	n, err := b.client.Exists(ctx, circuitKey(provider)).Result()
	if err != nil {
		return false, domain.NewStateBackendUnavailable(provider, err)
	}
	return n > 0, nil
}

func (b *Backend) Close() error {
	if closer, ok := b.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// exclusiveUpper renders a ZREMRANGEBYSCORE upper bound that excludes
// the cutoff itself, so a member scored exactly at now-window survives
// the purge per spec.md §8's boundary property.
func exclusiveUpper(cutoff time.Time) string {
	return "(" + strconv.FormatInt(cutoff.UnixNano(), 10)
}
