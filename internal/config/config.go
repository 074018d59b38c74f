// Package config loads releasarr configuration using Viper.
// Values come from defaults, an optional YAML file and RELEASARR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultGUIDTimeBucket    = time.Hour
	defaultGUIDSizeBucket    = 1024 * 1024
	defaultMaxBatchSize      = 5000
	defaultPerCategoryLimit  = 500
	defaultGlobalLimit       = 3000
	defaultRetentionSchedule = "30 3 * * *"
	defaultSyncSchedule      = "*/30 * * * *"
	defaultHTTPTimeout       = 30 * time.Second
	defaultRateLimit         = 2.0
	defaultRateBurst         = 4
	defaultBreakerFailures   = 5
	defaultBreakerTimeout    = time.Minute
	defaultStatusTTL         = 6 * time.Hour
	defaultExternalCacheTTL  = 10 * time.Minute
)

// Library manager kinds.
const (
	KindRadarr = "radarr"
	KindSonarr = "sonarr"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Retention RetentionConfig `mapstructure:"retention"`
	Library   LibraryConfig   `mapstructure:"library"`
	Match     MatchConfig     `mapstructure:"match"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	PosterDir string `mapstructure:"poster_dir"`
	// LockFile is shared with backup tooling. Ingestion holds it shared, backups exclusive.
	LockFile string `mapstructure:"lock_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// IngestionConfig tunes release ingestion.
type IngestionConfig struct {
	// GUIDTimeBucket rounds the publish time used by the composite identity fallback.
	GUIDTimeBucket time.Duration `mapstructure:"guid_time_bucket"`
	// GUIDSizeBucket is the byte width used to bucket sizes in the composite fallback.
	GUIDSizeBucket int64 `mapstructure:"guid_size_bucket"`
	MaxBatchSize   int   `mapstructure:"max_batch_size"`
}

// RetentionConfig holds the default per-source caps. Zero disables a cap.
type RetentionConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Schedule         string `mapstructure:"schedule"`
	PerCategoryLimit int    `mapstructure:"per_category_limit"`
	GlobalLimit      int    `mapstructure:"global_limit"`
}

// LibraryConfig holds library manager connections.
type LibraryConfig struct {
	SyncSchedule    string             `mapstructure:"sync_schedule"`
	HTTPTimeout     time.Duration      `mapstructure:"http_timeout"`
	RateLimit       float64            `mapstructure:"rate_limit"` // requests per second per app
	RateBurst       int                `mapstructure:"rate_burst"`
	BreakerFailures uint32             `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration      `mapstructure:"breaker_timeout"`
	Apps            []LibraryAppConfig `mapstructure:"apps"`
}

// LibraryAppConfig describes one Radarr or Sonarr instance.
type LibraryAppConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Enabled bool   `mapstructure:"enabled"`
}

// MatchConfig holds match status caching settings.
type MatchConfig struct {
	StatusTTL        time.Duration `mapstructure:"status_ttl"`
	ExternalCacheTTL time.Duration `mapstructure:"external_cache_ttl"`
}

// SourceConfig seeds a feed source. Limits override the retention defaults when set.
type SourceConfig struct {
	Name             string `mapstructure:"name"`
	IndexerKey       string `mapstructure:"indexer_key"`
	Enabled          bool   `mapstructure:"enabled"`
	PerCategoryLimit *int   `mapstructure:"per_category_limit"`
	GlobalLimit      *int   `mapstructure:"global_limit"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence and use the RELEASARR_ prefix,
// e.g. RELEASARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/releasarr")
		v.AddConfigPath("$HOME/.releasarr")
	}

	v.SetEnvPrefix("RELEASARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns the configuration built from defaults alone, ignoring
// config files and the environment.
func Defaults() (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling defaults: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "releasarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.poster_dir", "posters")
	v.SetDefault("storage.lock_file", "releasarr.lock")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ingestion.guid_time_bucket", defaultGUIDTimeBucket)
	v.SetDefault("ingestion.guid_size_bucket", defaultGUIDSizeBucket)
	v.SetDefault("ingestion.max_batch_size", defaultMaxBatchSize)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.schedule", defaultRetentionSchedule)
	v.SetDefault("retention.per_category_limit", defaultPerCategoryLimit)
	v.SetDefault("retention.global_limit", defaultGlobalLimit)

	v.SetDefault("library.sync_schedule", defaultSyncSchedule)
	v.SetDefault("library.http_timeout", defaultHTTPTimeout)
	v.SetDefault("library.rate_limit", defaultRateLimit)
	v.SetDefault("library.rate_burst", defaultRateBurst)
	v.SetDefault("library.breaker_failures", defaultBreakerFailures)
	v.SetDefault("library.breaker_timeout", defaultBreakerTimeout)

	v.SetDefault("match.status_ttl", defaultStatusTTL)
	v.SetDefault("match.external_cache_ttl", defaultExternalCacheTTL)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Ingestion.GUIDTimeBucket <= 0 {
		return fmt.Errorf("ingestion.guid_time_bucket must be positive")
	}
	if c.Ingestion.GUIDSizeBucket <= 0 {
		return fmt.Errorf("ingestion.guid_size_bucket must be positive")
	}
	if c.Ingestion.MaxBatchSize < 1 {
		return fmt.Errorf("ingestion.max_batch_size must be at least 1")
	}

	if c.Match.StatusTTL <= 0 || c.Match.ExternalCacheTTL <= 0 {
		return fmt.Errorf("match ttls must be positive")
	}

	seen := make(map[string]bool, len(c.Library.Apps))
	for i, app := range c.Library.Apps {
		if app.Name == "" {
			return fmt.Errorf("library.apps[%d].name is required", i)
		}
		if seen[app.Name] {
			return fmt.Errorf("library.apps[%d]: duplicate name %q", i, app.Name)
		}
		seen[app.Name] = true
		if app.Kind != KindRadarr && app.Kind != KindSonarr {
			return fmt.Errorf("library.apps[%d].kind must be one of: radarr, sonarr", i)
		}
		if app.BaseURL == "" {
			return fmt.Errorf("library.apps[%d].base_url is required", i)
		}
	}

	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PosterPath returns the full path to the poster directory.
func (c *StorageConfig) PosterPath() string {
	return filepath.Join(c.BaseDir, c.PosterDir)
}

// LockPath returns the maintenance lock file path. Relative paths live under BaseDir.
func (c *StorageConfig) LockPath() string {
	if filepath.IsAbs(c.LockFile) {
		return c.LockFile
	}
	return filepath.Join(c.BaseDir, c.LockFile)
}
