package redis

import (
	"context"

	"filmware-sync/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Connect dials redis and verifies the connection. The same client carries
// the change-feed pub/sub channel and the REST token presence set.
func Connect(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddress,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", cfg.RedisAddress).Msg("redis connected")
	return client, nil
}
