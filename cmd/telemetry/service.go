package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/iot-telemetry-hub/internal/alerting"
	"github.com/septivank/iot-telemetry-hub/internal/anomaly"
	"github.com/septivank/iot-telemetry-hub/internal/api"
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/db"
	"github.com/septivank/iot-telemetry-hub/internal/ingest"
	"github.com/septivank/iot-telemetry-hub/internal/mq"
	"github.com/septivank/iot-telemetry-hub/internal/notify"
	"github.com/septivank/iot-telemetry-hub/internal/repository"
	"github.com/septivank/iot-telemetry-hub/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startTelemetry appends the remaining hooks. Hooks stop in reverse order, so
// the listener and MQTT subscription (appended last) close before the broker
// connection and the database pool.
func startTelemetry(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	logger *zap.Logger,
	_ *pgxpool.Pool,
	repo *repository.TelemetryRepository,
	conn *mq.Connection,
	_ *mq.Publisher,
	engine *alerting.Engine,
	dispatcher *alerting.Dispatcher,
	hub *notify.Hub,
	subscriber *ingest.Subscriber,
	router http.Handler,
) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := service.NewRetentionSweeper(repo, cfg.Retention.MaxAge, logger)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go dispatcher.Run(ctx)
			go engine.RunSweeper(ctx, cfg.Alerting.SweepInterval)
			go sweeper.Run(ctx, cfg.Retention.SweepInterval)
			logger.Info("background workers started",
				zap.Int("alert_workers", cfg.Alerting.Workers),
				zap.Duration("cooldown_sweep", cfg.Alerting.SweepInterval),
				zap.Duration("retention_sweep", cfg.Retention.SweepInterval),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})

	api.NewServer(lc, shutdowner, logger, cfg.ServicePort, router)
	subscriber.RegisterLifecycle(lc)
}

// ProvideDBPool creates the telemetry store pool
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL, db.PoolOptions{
		MaxConns:        10,
		MaxConnIdleTime: 5 * time.Minute,
	})
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *pgxpool.Pool) *repository.TelemetryRepository {
	return repository.NewTelemetryRepository(pool)
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

// ProvidePublisher creates the latest-state publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) *mq.Publisher {
	return mq.NewPublisher(conn, cfg.RabbitMQ.DeviceExchange, logger)
}

// ProvideAlertEngine builds the threshold alert engine
func ProvideAlertEngine(cfg *config.Config, logger *zap.Logger) (*alerting.Engine, error) {
	thresholds, err := config.LoadThresholds(cfg.Alerting.ThresholdsFile)
	if err != nil {
		return nil, err
	}

	detector := anomaly.NewDetector(thresholds)
	cooldown := alerting.NewCooldown(cfg.Alerting.Cooldown, time.Now)
	directory := alerting.NewHTTPDirectory(cfg.Alerting.DevicesServiceURL, cfg.Alerting.LookupTimeout, logger)
	sink := alerting.NewWebhookSink(cfg.Alerting.WebhookURL, cfg.Alerting.DispatchTimeout, logger)

	if cfg.Alerting.WebhookURL == "" {
		logger.Warn("ALERT_WEBHOOK_URL is not set; alerts will fail to dispatch")
	}
	return alerting.NewEngine(detector, cooldown, directory, sink, logger), nil
}

// ProvideAlertDispatcher queues alert checks for background workers
func ProvideAlertDispatcher(cfg *config.Config, engine *alerting.Engine, logger *zap.Logger) *alerting.Dispatcher {
	return alerting.NewDispatcher(engine, cfg.Alerting.Workers, cfg.Alerting.QueueSize, logger)
}

// ProvideHub creates the device notification channel
func ProvideHub(logger *zap.Logger) *notify.Hub {
	return notify.NewHub("device", logger)
}

// ProvideIngestService wires the write path
func ProvideIngestService(
	repo *repository.TelemetryRepository,
	publisher *mq.Publisher,
	dispatcher *alerting.Dispatcher,
	hub *notify.Hub,
	logger *zap.Logger,
) *service.IngestService {
	return service.NewIngestService(repo, publisher, dispatcher, hub, logger)
}

// ProvideQueryService wires the read path
func ProvideQueryService(repo *repository.TelemetryRepository, logger *zap.Logger) *service.QueryService {
	return service.NewQueryService(repo, logger)
}

// ProvideSubscriber creates the MQTT subscriber
func ProvideSubscriber(cfg *config.Config, ingester *service.IngestService, logger *zap.Logger) *ingest.Subscriber {
	return ingest.NewSubscriber(ingest.SubscriberConfig{
		BrokerURL:        cfg.MQTT.BrokerURL,
		ClientID:         cfg.MQTT.ClientID,
		Username:         cfg.MQTT.Username,
		Password:         cfg.MQTT.Password,
		Topic:            cfg.MQTT.Topic,
		QoS:              1,
		ReconnectBackoff: cfg.MQTT.ReconnectBackoff,
		Workers:          cfg.MQTT.Workers,
		QueueSize:        cfg.MQTT.QueueSize,
		Ingester:         ingester,
		Logger:           logger,
	})
}

// ProvideAuthenticator creates the bearer token verifier
func ProvideAuthenticator(cfg *config.Config) *api.Authenticator {
	return api.NewAuthenticator(cfg.Auth.JWTSecret)
}

// ProvideRouter builds the HTTP routes
func ProvideRouter(
	cfg *config.Config,
	logger *zap.Logger,
	query *service.QueryService,
	engine *alerting.Engine,
	hub *notify.Hub,
	auth *api.Authenticator,
) http.Handler {
	return api.NewRouter(cfg.ServiceName, logger,
		api.NewTelemetryHandler(query, engine, hub, auth, logger),
	)
}
