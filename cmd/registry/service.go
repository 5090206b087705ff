package main

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/septivank/iot-telemetry-hub/internal/api"
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/mq"
	"github.com/septivank/iot-telemetry-hub/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startRegistry appends the listener after the cache and broker hooks so it
// stops first
func startRegistry(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	logger *zap.Logger,
	_ *redis.Client,
	_ *mq.Consumer,
	router http.Handler,
) {
	logger.Info("device registry consumer configured",
		zap.String("exchange", cfg.RabbitMQ.DeviceExchange),
		zap.String("queue", cfg.RabbitMQ.RegistryQueue),
		zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount),
	)
	api.NewServer(lc, shutdowner, logger, cfg.ServicePort, router)
}

// ProvideRedis creates the latest-state cache client
func ProvideRedis(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) *redis.Client {
	return registry.NewClient(lc, logger, registry.ClientOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideStore creates the latest-state store
func ProvideStore(client *redis.Client, cfg *config.Config) *registry.Store {
	return registry.NewStore(client, cfg.Redis.LatestTTL)
}

// ProvideMQConnection creates the broker connection manager
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) *mq.Connection {
	conn := mq.NewConnection(mq.ConnectionConfig{
		URL:     cfg.RabbitMQ.URL,
		Backoff: cfg.RabbitMQ.ReconnectBackoff,
		Logger:  logger,
	})
	conn.RegisterLifecycle(lc)
	return conn
}

// ProvideHandler creates the device update handler
func ProvideHandler(store *registry.Store, logger *zap.Logger) *registry.Handler {
	return registry.NewHandler(store, logger)
}

// ProvideConsumer binds the registry queue to the device update exchange
func ProvideConsumer(lc fx.Lifecycle, conn *mq.Connection, handler *registry.Handler, cfg *config.Config, logger *zap.Logger) *mq.Consumer {
	consumer := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Exchange:         cfg.RabbitMQ.DeviceExchange,
		Queue:            cfg.RabbitMQ.RegistryQueue,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: handler.Handle,
	})
	consumer.RegisterLifecycle(lc)
	return consumer
}

// ProvideRouter builds the HTTP routes
func ProvideRouter(cfg *config.Config, logger *zap.Logger, store *registry.Store) http.Handler {
	return api.NewRouter(cfg.ServiceName, logger, api.NewRegistryHandler(store, logger))
}
