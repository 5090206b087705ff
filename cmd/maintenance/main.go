package main

import (
	"github.com/septivank/iot-telemetry-hub/internal/app"
	"go.uber.org/fx"
)

func main() {
	app.Run("maintenance-service",
		fx.Provide(
			loadConfig,
			newLogger,
			ProvideSQLDB,
			ProvideRepository,
			ProvideHub,
			ProvideTicketService,
			ProvideAuthenticator,
			ProvideRouter,
		),
		fx.Invoke(startMaintenance),
	)
}
