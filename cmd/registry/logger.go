package main

import (
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/logging"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.LoadService("device-registry", 3002, config.RequireRabbitMQ, config.RequireRedis)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)
}
