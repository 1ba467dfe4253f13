package cli

import (
	"fmt"
	"log/slog"
	"os"

	"footprint/internal"
	"footprint/internal/config"
	"footprint/internal/database"
	"footprint/internal/pkg/logging"
)

func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return logging.Discard()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openServices connects to the configured database and builds the services
// every DB-backed subcommand reads through. The returned func releases them.
func openServices(verbose bool) (*internal.Services, func(), error) {
	cfg := config.GetConfig()
	logger := newLogger(verbose)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		dbManager.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	services, err := internal.NewServices(cfg, dbManager, logger)
	if err != nil {
		dbManager.Close()
		return nil, nil, err
	}
	return services, func() {
		services.Close()
		dbManager.Close()
	}, nil
}
