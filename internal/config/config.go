// Package config loads candled's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds all server settings.
type Config struct {
	Addr string `env:"CANDLED_ADDR,default=:8080"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	SnapshotBackend    string        `env:"SNAPSHOT_BACKEND,default=memory"`
	SnapshotDir        string        `env:"SNAPSHOT_DIR,default=./data/snapshots"`
	SnapshotTTL        time.Duration `env:"SNAPSHOT_TTL,default=168h"`
	SnapshotQuotaBytes int           `env:"SNAPSHOT_QUOTA_BYTES,default=5242880"`
	RedisURL           string        `env:"REDIS_URL"`

	LabelPreviewMaxBytes int `env:"LABEL_PREVIEW_MAX_BYTES,default=102400"`
	AudioBlobMaxBytes    int `env:"AUDIO_BLOB_MAX_BYTES,default=1048576"`

	CatalogURL  string `env:"CATALOG_URL"`
	CatalogFile string `env:"CATALOG_FILE,default=configs/catalog.yaml"`

	ModelURL      string `env:"MODEL_URL,default=/models/candle.glb"`
	AssetBaseURL  string `env:"ASSET_BASE_URL"`
	AssetMaxBytes int64  `env:"ASSET_MAX_BYTES,default=16777216"`
	ModelCache    int    `env:"MODEL_CACHE_SIZE,default=32"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT,default=30m"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads envFiles (missing ones are skipped) and then decodes the
// environment. Variables already set win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.SnapshotBackend = strings.ToLower(cfg.SnapshotBackend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings are usable together.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("CANDLED_ADDR is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json", "zerolog":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json, zerolog", c.LogFormat))
	}
	switch c.SnapshotBackend {
	case "memory":
	case "file":
		if c.SnapshotDir == "" {
			errs = append(errs, errors.New("SNAPSHOT_DIR is required for the file backend"))
		}
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("SNAPSHOT_BACKEND %q is not one of memory, file, redis", c.SnapshotBackend))
	}
	if c.SnapshotTTL < 0 {
		errs = append(errs, errors.New("SNAPSHOT_TTL must not be negative"))
	}
	if c.LabelPreviewMaxBytes <= 0 || c.AudioBlobMaxBytes <= 0 {
		errs = append(errs, errors.New("LABEL_PREVIEW_MAX_BYTES and AUDIO_BLOB_MAX_BYTES must be positive"))
	}
	if c.AssetMaxBytes <= 0 {
		errs = append(errs, errors.New("ASSET_MAX_BYTES must be positive"))
	}
	if c.ModelCache <= 0 {
		errs = append(errs, errors.New("MODEL_CACHE_SIZE must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// UseRedis reports whether any component needs a Redis connection.
func (c *Config) UseRedis() bool {
	return c.RedisURL != ""
}
