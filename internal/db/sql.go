package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewSQLDB opens the ticket store through database/sql and the lib/pq
// driver. The handle is pinged on start and closed on stop.
func NewSQLDB(lc fx.Lifecycle, logger *zap.Logger, databaseURL string) (*sql.DB, error) {
	logger.Info("initializing ticket store connection")

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to open ticket store: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				logger.Error("ticket store ping failed", zap.Error(err), zap.String("url", MaskPassword(databaseURL)))
				return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot reach ticket store: %w", err)
			}
			logger.Info("ticket store connection established")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := sqlDB.Close(); err != nil {
				return fmt.Errorf("failed to close ticket store: %w", err)
			}
			logger.Info("ticket store connection closed")
			return nil
		},
	})

	return sqlDB, nil
}
