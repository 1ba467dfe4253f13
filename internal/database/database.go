// Package database owns the sqlite connection and schema of the service.
package database

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"footprint/internal/config"
	"footprint/internal/models"
)

// DBManager wraps cartridge's sqlite.Manager with the footprint schema.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
	path   string
}

func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
		path:    cfg.DatabaseName,
	}
}

// Init opens the connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// MigrateDatabase creates or updates the domains, users, details and events
// tables in one transaction, then folds the WAL back into the main file.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	schema := models.All()
	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(schema...)
	}); err != nil {
		return fmt.Errorf("migrate %s: %w", dm.path, err)
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("WAL checkpoint after migration failed", slog.Any("error", err))
	}
	dm.logger.Info("Schema up to date", slog.Int("tables", len(schema)), slog.String("path", dm.path))
	return nil
}

// Close closes the underlying connection pool.
func (dm *DBManager) Close() error {
	db := dm.GetConnection()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
