package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// Config configures a fixed-window limiter
type Config struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	Prefix  string
}

// RedisLimiter counts requests per key in fixed windows shared across replicas
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger logger.Logger
}

// NewLimiter returns a Redis limiter, or a limiter that always allows when
// disabled or when no client is available.
func NewLimiter(cfg Config, client *redis.Client, log logger.Logger) ports.Limiter {
	if !cfg.Enabled || client == nil || cfg.Limit <= 0 {
		log.Info(context.Background(), "Rate limiting disabled", nil)
		return NoopLimiter{}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}

	log.Info(context.Background(), "Rate limiting initialized", map[string]interface{}{
		"limit":  cfg.Limit,
		"window": cfg.Window.String(),
	})

	return &RedisLimiter{
		client: client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: prefix,
		logger: log,
	}
}

// Allow increments the counter for key and reports whether it is still within the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipeline := l.client.Pipeline()
	incrCmd := pipeline.Incr(ctx, redisKey)
	pipeline.Expire(ctx, redisKey, l.window)

	if _, err := pipeline.Exec(ctx); err != nil {
		l.logger.Error(ctx, "Failed to increment rate limit counter", err, map[string]interface{}{
			"key": key,
		})
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	count := incrCmd.Val()
	allowed := count <= int64(l.limit)

	l.logger.Debug(ctx, "Rate limit check", map[string]interface{}{
		"key":     key,
		"current": count,
		"limit":   l.limit,
		"allowed": allowed,
	})

	return allowed, nil
}

// NoopLimiter allows everything
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) {
	return true, nil
}
