package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// GeoLiteReloadInterval is how often the GeoLite file is checked for changes.
// MaxMind publishes updates weekly; geoipupdate replaces the file in place.
const GeoLiteReloadInterval = time.Hour

// Reloader reopens a database from disk.
type Reloader interface {
	Reload() error
}

// GeoLiteReloadJob reloads the GeoLite2 database when the file on disk
// changes, so an external updater can replace it without a restart.
type GeoLiteReloadJob struct {
	path     string
	reloader Reloader
	logger   *slog.Logger
	lastMod  time.Time
}

func NewGeoLiteReloadJob(path string, reloader Reloader, logger *slog.Logger) *GeoLiteReloadJob {
	j := &GeoLiteReloadJob{path: path, reloader: reloader, logger: logger}
	if info, err := os.Stat(path); err == nil {
		j.lastMod = info.ModTime()
	}
	return j
}

func (j *GeoLiteReloadJob) Name() string { return "geolite_reload" }

func (j *GeoLiteReloadJob) Run(_ context.Context) error {
	if j.path == "" {
		return nil
	}
	info, err := os.Stat(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat geolite2 database: %w", err)
	}
	if !info.ModTime().After(j.lastMod) {
		return nil
	}

	j.logger.Info("GeoLite2 database changed on disk, reloading",
		slog.String("path", j.path),
		slog.Time("modified", info.ModTime()))
	if err := j.reloader.Reload(); err != nil {
		return fmt.Errorf("reload geolite2 database: %w", err)
	}
	j.lastMod = info.ModTime()
	return nil
}
