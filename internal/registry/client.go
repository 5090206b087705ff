package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ClientOptions configures the Redis connection.
type ClientOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client that is pinged on start and closed on stop
func NewClient(lc fx.Lifecycle, logger *zap.Logger, opts ClientOptions) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Error("redis ping failed", zap.Error(err), zap.String("addr", opts.Addr))
				return fmt.Errorf("[REDIS CONNECTION FAILED] cannot reach %s: %w", opts.Addr, err)
			}
			logger.Info("redis connection established", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Close(); err != nil {
				return fmt.Errorf("failed to close redis client: %w", err)
			}
			logger.Info("redis connection closed")
			return nil
		},
	})

	return client
}
