package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 30 * time.Second
)

// Run loads the environment, builds the fx application and blocks until
// SIGINT, SIGTERM or a shutdown request from a component. The process exits
// with status 1 when start or stop fails.
func Run(serviceName string, opts ...fx.Option) {
	announceEnv()

	opts = append(opts, fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	}))
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to build application: %v\n", serviceName, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			fmt.Fprintf(os.Stderr, "%s: APPLICATION START TIMEOUT: failed to start within %s; a dependency (database, broker or cache) is probably unreachable\n",
				serviceName, startTimeout)
		}
		fmt.Fprintf(os.Stderr, "%s: failed to start: %v\n", serviceName, err)
		os.Exit(1)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		exitCode = sig.ExitCode
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: error stopping app: %v\n", serviceName, err)
		exitCode = 1
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
