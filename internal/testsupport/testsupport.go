// Package testsupport builds databases, apps and events for tests.
package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"footprint/internal"
	"footprint/internal/config"
	"footprint/internal/events"
	"footprint/internal/models"
	"footprint/internal/pkg/user_agent"
)

// ChromeUA is a desktop Chrome on Windows user agent.
const ChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// TestDBManager adapts an open gorm handle to cartridge.DBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{TestDBManager: ctestsupport.NewTestDBManager(db)}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB opens a private in-memory database with the full schema. Every
// call gets its own database, closed when the test ends. cache=shared lets
// the pool's connections see the same data.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:fp_%s?mode=memory&cache=shared", ulid.Make())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "open test database")
	require.NoError(t, db.AutoMigrate(models.All()...), "migrate test database")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SetupTestDBManager returns a manager over a fresh database and a quiet logger.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	return NewTestDBManager(SetupTestDB(t)), Logger()
}

// Logger only reports errors, so failing tests still show what went wrong.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestConfig returns a fresh test configuration in UTC.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("FOOTPRINT_ENV", config.Test)
	t.Setenv("FOOTPRINT_TIMEZONE", "UTC")
	config.Reset()
	t.Cleanup(config.Reset)
	return config.GetConfig()
}

// CreateMinimalTestApp mounts every route over db with an in-memory
// presence tracker.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) (*fiber.App, *internal.Services) {
	t.Helper()

	appConfig := TestConfig(t)
	dbManager := NewTestDBManager(db)
	log := Logger()

	services, err := internal.NewServices(appConfig, dbManager, log)
	require.NoError(t, err)
	t.Cleanup(services.Close)

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = log
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(services)(srv)
	return srv.App(), services
}

// NewEvent builds a canonical event in UTC as the normalizer would produce it.
func NewEvent(eventType events.EventType, domain, fp, ip string, ts time.Time) *events.CanonicalEvent {
	event := &events.CanonicalEvent{
		ID:          ulid.Make().String(),
		Type:        eventType,
		Domain:      domain,
		Fingerprint: fp,
		IP:          ip,
		UserAgent:   ChromeUA,
		Browser:     events.BrowserInfo{Name: "Chrome", Version: "91.0.4472.124"},
		OS:          "Windows",
		OSVersion:   "10",
		Device:      user_agent.DeviceDesktop,
		Timestamp:   ts.UTC(),
	}
	switch eventType {
	case events.TypeView:
		event.Data = events.ViewData{PageURL: "https://" + domain + "/"}
		event.URL = "https://" + domain + "/"
	case events.TypeClick:
		event.Data = events.ClickData{ElementType: "button"}
	case events.TypeHeartbeat:
		event.Data = events.HeartbeatData{}
	default:
		event.Data, _ = events.DecodeTypeData(eventType, nil)
	}
	return event
}

// NewView builds a view of url.
func NewView(domain, fp, ip, url string, ts time.Time) *events.CanonicalEvent {
	event := NewEvent(events.TypeView, domain, fp, ip, ts)
	event.URL = url
	event.Data = events.ViewData{PageURL: url}
	return event
}
