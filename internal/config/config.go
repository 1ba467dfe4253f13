// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"
	_ "time/tzdata" // canonical zone must resolve on minimal images

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Presence backends
const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// AdminKeyHash is a bcrypt hash of the bearer key guarding admin endpoints.
	AdminKeyHash string `mapstructure:"adminkeyhash"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Tracking policy
	Timezone                 string  `mapstructure:"timezone"`
	PresenceTimeoutSeconds   int     `mapstructure:"presencetimeoutseconds"`
	HeartbeatIntervalSeconds int     `mapstructure:"heartbeatintervalseconds"`
	FingerprintTTLDays       int     `mapstructure:"fingerprintttldays"`
	FingerprintDriftRatio    float64 `mapstructure:"fingerprintdriftratio"`
	GeoLookupTimeoutMillis   int     `mapstructure:"geolookuptimeoutmillis"`
	IngestWorkers            int     `mapstructure:"ingestworkers"`

	// Presence storage
	PresenceBackend string `mapstructure:"presencebackend"`
	RedisAddr       string `mapstructure:"redisaddr"`
	RedisPassword   string `mapstructure:"redispassword"`
	RedisDB         int    `mapstructure:"redisdb"`
	RedisKeyPrefix  string `mapstructure:"rediskeyprefix"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings; zero keeps events forever
	EventRetentionDays int `mapstructure:"eventretentiondays"`

	location *time.Location
}

var (
	cfg  *Config
	once sync.Once
)

// setting binds one viper key to its environment variable and default.
type setting struct {
	key   string
	env   string
	value any
}

const defaultPrivateKey = "88888888888888888888888888888888"

var settings = []setting{
	{"appname", "APP_NAME", "footprint"},
	{"appport", "APP_PORT", "3000"},
	{"environment", "ENV", Development},
	{"loglevel", "LOG_LEVEL", string(LogLevelDebug)},
	{"privatekey", "PRIVATE_KEY", defaultPrivateKey},
	{"adminkeyhash", "ADMIN_KEY_HASH", ""},
	{"storagepath", "STORAGE_PATH", "storage"},
	{"geodbpath", "GEO_DB_PATH", "storage/GeoLite2-City.mmdb"},
	{"publicdir", "PUBLIC_DIR", "public"},
	{"publicassetsurlprefix", "PUBLIC_ASSETS_URL_PREFIX", "/"},
	{"logsdir", "LOGS_DIR", "logs"},
	{"logsmaxsizeinmb", "LOGS_MAX_SIZE_IN_MB", 20},
	{"logsmaxbackups", "LOGS_MAX_BACKUPS", 10},
	{"logsmaxageindays", "LOGS_MAX_AGE_IN_DAYS", 30},
	{"dbmaxopenconns", "DB_MAX_OPEN_CONNS", 0},
	{"dbmaxidleconns", "DB_MAX_IDLE_CONNS", 0},
	{"timezone", "TIMEZONE", "Asia/Shanghai"},
	{"presencetimeoutseconds", "PRESENCE_TIMEOUT_SECONDS", 300},
	{"heartbeatintervalseconds", "HEARTBEAT_INTERVAL_SECONDS", 90},
	{"fingerprintttldays", "FINGERPRINT_TTL_DAYS", 30},
	{"fingerprintdriftratio", "FINGERPRINT_DRIFT_RATIO", 0.3},
	{"geolookuptimeoutmillis", "GEO_LOOKUP_TIMEOUT_MILLIS", 500},
	{"ingestworkers", "INGEST_WORKERS", 4},
	{"presencebackend", "PRESENCE_BACKEND", PresenceMemory},
	{"redisaddr", "REDIS_ADDR", ""},
	{"redispassword", "REDIS_PASSWORD", ""},
	{"redisdb", "REDIS_DB", 0},
	{"rediskeyprefix", "REDIS_KEY_PREFIX", "footprint"},
	{"jobintervalseconds", "JOB_INTERVAL_SECONDS", 60},
	{"eventretentiondays", "EVENT_RETENTION_DAYS", 0},
}

// GetConfig loads the configuration from FOOTPRINT_* variables once and
// exits the process when it is invalid.
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

func load() (*Config, error) {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.value)
		if err := v.BindEnv(s.key, "FOOTPRINT_"+s.env); err != nil {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsProduction() && c.PrivateKey == defaultPrivateKey {
		return nil, fmt.Errorf("production requires a unique FOOTPRINT_PRIVATE_KEY")
	}
	c.DatabaseName = c.GetDatabasePath()
	return c, nil
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	if c.PresenceTimeoutSeconds <= 0 {
		return fmt.Errorf("presence timeout must be positive, got %d", c.PresenceTimeoutSeconds)
	}
	// Heartbeats must land inside the presence timeout.
	if c.HeartbeatIntervalSeconds <= 0 || c.HeartbeatIntervalSeconds >= c.PresenceTimeoutSeconds {
		return fmt.Errorf("heartbeat interval (%ds) must be shorter than presence timeout (%ds)",
			c.HeartbeatIntervalSeconds, c.PresenceTimeoutSeconds)
	}

	if c.FingerprintDriftRatio < 0 || c.FingerprintDriftRatio > 1 {
		return fmt.Errorf("fingerprint drift ratio must be within [0,1], got %v", c.FingerprintDriftRatio)
	}

	switch c.PresenceBackend {
	case PresenceMemory:
	case PresenceRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("presence backend %q requires a redis address", c.PresenceBackend)
		}
	default:
		return fmt.Errorf("invalid presence backend: %s", c.PresenceBackend)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// Location returns the canonical zone used for bucketing and display timestamps.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return time.UTC
		}
		c.location = loc
	}
	return c.location
}

// PresenceTimeout is the recency window that makes a visitor count as online.
func (c *Config) PresenceTimeout() time.Duration {
	return time.Duration(c.PresenceTimeoutSeconds) * time.Second
}

// HeartbeatInterval is the interval the tracking snippet is told to ping at.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func (c *Config) FingerprintTTL() time.Duration {
	return time.Duration(c.FingerprintTTLDays) * 24 * time.Hour
}

func (c *Config) GeoLookupTimeout() time.Duration {
	return time.Duration(c.GeoLookupTimeoutMillis) * time.Millisecond
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets.
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets.
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name.
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string.
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key.
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// Test runs use a single connection; otherwise ten allows parallel dashboard reads.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetLogLevel returns the log level as a string.
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory.
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB.
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups.
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files.
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
