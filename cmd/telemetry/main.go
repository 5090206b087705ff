package main

import (
	"github.com/septivank/iot-telemetry-hub/internal/app"
	"go.uber.org/fx"
)

func main() {
	app.Run("telemetry-service",
		fx.Provide(
			loadConfig,
			newLogger,
			ProvideDBPool,
			ProvideRepository,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideAlertEngine,
			ProvideAlertDispatcher,
			ProvideHub,
			ProvideIngestService,
			ProvideQueryService,
			ProvideSubscriber,
			ProvideAuthenticator,
			ProvideRouter,
		),
		fx.Invoke(startTelemetry),
	)
}
