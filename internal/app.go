// Package internal wires the footprint components into a cartridge
// application.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"footprint/internal/analytics"
	"footprint/internal/broker"
	"footprint/internal/config"
	"footprint/internal/database"
	"footprint/internal/events"
	"footprint/internal/fingerprint"
	"footprint/internal/ingest"
	"footprint/internal/jobs"
	"footprint/internal/metrics"
	"footprint/internal/pkg/geoip"
	"footprint/internal/pkg/logging"
	"footprint/internal/pkg/user_agent"
	"footprint/internal/presence"
	"footprint/internal/store"
)

// Services holds the long-lived components shared by the HTTP handlers and
// background jobs.
type Services struct {
	Config     *config.Config
	Logger     *slog.Logger
	Repository store.Repository
	Presence   presence.Tracker
	Broker     *broker.Broker
	Metrics    *metrics.Metrics
	Geo        *geoip.Resolver
	Classifier *user_agent.Classifier
	Pipeline   *ingest.Pipeline
	Analytics  *analytics.Service
	Scheduler  *jobs.Scheduler
}

// NewServices builds every component from cfg. The database must be
// connected but need not be migrated yet.
func NewServices(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) (*Services, error) {
	tracker, err := newTracker(cfg)
	if err != nil {
		return nil, err
	}

	geo, err := geoip.Open(cfg.GeoDBPath, logger)
	if err != nil {
		tracker.Close()
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}

	m := metrics.New()
	repo := store.NewGormRepository(dbManager, logger)
	hub := broker.New(broker.OnDrop(m.LiveDropped))
	classifier := user_agent.Default()

	pipeline := ingest.New(ingest.Options{
		Normalizer: events.NewNormalizer(classifier, cfg.Location()).
			WithGenerator(fingerprint.NewGenerator(cfg.FingerprintTTL(), cfg.FingerprintDriftRatio, logger)),
		Repository: repo,
		Presence:   tracker,
		Publisher:  hub,
		Locator:    geo,
		GeoTimeout: cfg.GeoLookupTimeout(),
		Workers:    cfg.IngestWorkers,
		Metrics:    m,
		Logger:     logger,
	})

	scheduler := jobs.NewScheduler(logger).
		Every(time.Duration(cfg.JobIntervalSeconds)*time.Second, jobs.NewPresenceSweepJob(tracker, logger)).
		Every(24*time.Hour, jobs.NewRetentionJob(repo, logger, cfg.EventRetentionDays)).
		Every(jobs.GeoLiteReloadInterval, jobs.NewGeoLiteReloadJob(cfg.GeoDBPath, geo, logger))

	return &Services{
		Config:     cfg,
		Logger:     logger,
		Repository: repo,
		Presence:   tracker,
		Broker:     hub,
		Metrics:    m,
		Geo:        geo,
		Classifier: classifier,
		Pipeline:   pipeline,
		Analytics:  analytics.NewService(repo, cfg.Location(), logger),
		Scheduler:  scheduler,
	}, nil
}

func newTracker(cfg *config.Config) (presence.Tracker, error) {
	if cfg.PresenceBackend != config.PresenceRedis {
		return presence.NewMemoryTracker(cfg.PresenceTimeout()), nil
	}
	tracker, err := presence.NewRedisTracker(presence.RedisConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisKeyPrefix,
	}, cfg.PresenceTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to connect presence store: %w", err)
	}
	return tracker, nil
}

// WarmPresence seeds the tracker from recently active visitors. Call it after
// migrations have run.
func (s *Services) WarmPresence(ctx context.Context) error {
	return presence.Warm(ctx, s.Presence, s.Repository, s.Config.PresenceTimeout(), time.Now(), s.Logger)
}

// Close releases the broker, presence store and geoip database.
func (s *Services) Close() {
	s.Broker.Close()
	if err := s.Presence.Close(); err != nil {
		s.Logger.Warn("Failed to close presence tracker", slog.Any("error", err))
	}
	if err := s.Geo.Close(); err != nil {
		s.Logger.Warn("Failed to close geoip database", slog.Any("error", err))
	}
}

// Application wraps cartridge.Application with the footprint components.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Services  *Services
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.New(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	services, err := NewServices(cfg, dbManager, logger)
	if err != nil {
		return nil, err
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountAppRoutes(services),
		BackgroundWorkers: []cartridge.BackgroundWorker{services.Scheduler},
	})
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
	}, nil
}
