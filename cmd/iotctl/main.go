package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/septivank/iot-telemetry-hub/internal/app"
	"github.com/spf13/cobra"
)

func main() {
	app.LoadEnv()

	rootCmd := &cobra.Command{
		Use:   "iotctl",
		Short: "Operator tool for the IoT telemetry hub",
		Long: `iotctl publishes sample sensor messages to the device broker, fires
test alerts through the alert webhook, issues bearer tokens for local testing
prints the maintenance ticket transition table and applies the schema.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(alertTestCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(transitionsCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
