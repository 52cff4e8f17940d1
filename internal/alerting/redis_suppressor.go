package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared suppression store.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// RedisSuppressor shares suppression state between hub instances. A key is
// written with SET NX and a TTL one millisecond past the window, so a repeat
// exactly one window later is still suppressed, as with MemorySuppressor.
// Redis errors fall back to an in-process MemorySuppressor.
type RedisSuppressor struct {
	client   *redis.Client
	prefix   string
	window   time.Duration
	fallback *MemorySuppressor
	logger   *slog.Logger
}

func NewRedisSuppressor(ctx context.Context, cfg RedisConfig, window time.Duration, fallback *MemorySuppressor, logger *slog.Logger) (*RedisSuppressor, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "uptix:suppress:"
	}
	if window <= 0 {
		window = DefaultSuppressionWindow
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSuppressor{
		client:   client,
		prefix:   cfg.KeyPrefix,
		window:   window,
		fallback: fallback,
		logger:   logger,
	}, nil
}

func (r *RedisSuppressor) Allow(ctx context.Context, key string, now time.Time) bool {
	ok, err := r.client.SetNX(ctx, r.prefix+key, strconv.FormatInt(now.UnixMilli(), 10), r.window+time.Millisecond).Result()
	if err != nil {
		r.logger.Error("redis suppression check failed, using local state", "key", key, "err", err)
		return r.fallback.Allow(ctx, key, now)
	}
	return ok
}

func (r *RedisSuppressor) Close() error {
	return r.client.Close()
}
