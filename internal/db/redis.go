package db

import (
	"context"
	"log/slog"
	"time"

	"backend-alluviamaps/internal/config"

	"github.com/redis/go-redis/v9"
)

var pingRedisFn = func(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// ConnectRedis returns nil when Redis is not configured or not reachable; the
// stream hub then only delivers to clients of this process.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pingRedisFn(ctx, client); err != nil {
		slog.Warn("redis unreachable, map events stay local", "addr", cfg.RedisAddr, "err", err)
		_ = client.Close()
		return nil
	}
	return client
}
