// main.go - footprint collection and query server
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"footprint/internal"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	warmTimeout            = 30 * time.Second
)

func main() {
	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	logger := app.Services.Logger

	if err := app.DBManager.MigrateDatabase(); err != nil {
		logger.Error("Failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// A restart must not report every visitor offline until their next heartbeat
	warmCtx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	if err := app.Services.WarmPresence(warmCtx); err != nil {
		logger.Warn("Failed to warm presence tracker", slog.Any("error", err))
	}
	cancel()

	if err := app.StartAsync(); err != nil {
		logger.Error("Failed to start application", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("footprint started",
		slog.String("port", app.Services.Config.GetPort()),
		slog.String("environment", app.Services.Config.Environment))

	os.Exit(waitForShutdownSignal(app, logger))
}

// waitForShutdownSignal blocks until SIGINT, SIGTERM or SIGHUP and shuts the
// server down, returning the process exit code.
func waitForShutdownSignal(app *internal.Application, logger *slog.Logger) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	// Live streams hold their connections open until the broker closes.
	app.Services.Broker.Close()
	err := app.Shutdown(ctx)
	app.Services.Close()
	if err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		return 1
	}
	logger.Info("Server shutdown complete")
	return 0
}
