package main

import (
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/logging"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.LoadService("telemetry-service", 3005,
		config.RequireDatabase,
		config.RequireRabbitMQ,
		config.RequireMQTT,
		config.RequireAuth,
	)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)
}
