package main

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/septivank/iot-telemetry-hub/internal/api"
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/db"
	"github.com/septivank/iot-telemetry-hub/internal/maintenance"
	"github.com/septivank/iot-telemetry-hub/internal/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startMaintenance appends the listener last so it stops before the database
func startMaintenance(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	logger *zap.Logger,
	_ *sql.DB,
	hub *notify.Hub,
	router http.Handler,
) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})
	api.NewServer(lc, shutdowner, logger, cfg.ServicePort, router)
}

// ProvideSQLDB opens the ticket store
func ProvideSQLDB(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*sql.DB, error) {
	return db.NewSQLDB(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates the ticket repository
func ProvideRepository(sqlDB *sql.DB) *maintenance.PostgresRepository {
	return maintenance.NewPostgresRepository(sqlDB)
}

// ProvideHub creates the ticket notification channel
func ProvideHub(logger *zap.Logger) *notify.Hub {
	return notify.NewHub("ticket", logger)
}

// ProvideTicketService wires the ticket state machine
func ProvideTicketService(repo *maintenance.PostgresRepository, hub *notify.Hub, logger *zap.Logger) *maintenance.Service {
	return maintenance.NewService(repo, hub, logger)
}

// ProvideAuthenticator creates the bearer token verifier
func ProvideAuthenticator(cfg *config.Config) *api.Authenticator {
	return api.NewAuthenticator(cfg.Auth.JWTSecret)
}

// ProvideRouter builds the HTTP routes
func ProvideRouter(
	cfg *config.Config,
	logger *zap.Logger,
	tickets *maintenance.Service,
	hub *notify.Hub,
	auth *api.Authenticator,
) http.Handler {
	return api.NewRouter(cfg.ServiceName, logger,
		api.NewMaintenanceHandler(tickets, hub, auth, logger),
	)
}
