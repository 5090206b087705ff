package main

import (
	"github.com/septivank/iot-telemetry-hub/internal/app"
	"go.uber.org/fx"
)

func main() {
	app.Run("device-registry",
		fx.Provide(
			loadConfig,
			newLogger,
			ProvideRedis,
			ProvideStore,
			ProvideMQConnection,
			ProvideHandler,
			ProvideConsumer,
			ProvideRouter,
		),
		fx.Invoke(startRegistry),
	)
}
