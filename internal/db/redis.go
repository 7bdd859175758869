package db

import (
	"backend-platego/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds the client backing the stream hub's cross-instance
// fan-out and the live volunteer position cache. Redis is optional: with no
// address configured the hub runs single-instance and positions come from
// Postgres only.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
