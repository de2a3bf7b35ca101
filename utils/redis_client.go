package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kcbuddy/kcbuddy/config"
)

// NewRedis returns a client when REDIS_ADDR is configured, nil otherwise.
// An unreachable server is logged, not fatal: limiters fail open.
func NewRedis(cfg *config.AppConfig, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return client
}
