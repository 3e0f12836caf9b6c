package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/database"
)

// Store drivers selectable with STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

type Config struct {
	Port                      int    `env:"PORT" envDefault:"8080"`
	StoreDriver               string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL               string `env:"DATABASE_URL"`
	RedisURL                  string `env:"REDIS_URL"`
	LogLevel                  string `env:"LOG_LEVEL" envDefault:"info"`
	Timezone                  string `env:"TIMEZONE" envDefault:"Local"`
	PairingCodeTTLSeconds     int    `env:"PAIRING_CODE_TTL_SECONDS" envDefault:"900"`
	OfflineThresholdSeconds   int    `env:"OFFLINE_THRESHOLD_SECONDS" envDefault:"180"`
	StoreLockTimeoutMs        int    `env:"STORE_LOCK_TIMEOUT_MS" envDefault:"2000"`
	HeartbeatSampleCapacity   int    `env:"HEARTBEAT_SAMPLE_CAPACITY" envDefault:"50"`
	GCIntervalSeconds         int    `env:"GC_INTERVAL_SECONDS" envDefault:"0"`
	GCAbandonedDeviceAgeHours int    `env:"GC_ABANDONED_DEVICE_AGE_HOURS" envDefault:"24"`
	AdminTokenSHA256          string `env:"ADMIN_TOKEN_SHA256"`
	PairingRateLimitPerMin    int    `env:"PAIRING_RATE_LIMIT_PER_MIN" envDefault:"10"`
	MaxBodyBytes              int64  `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

func (c *Config) PairingCodeTTL() time.Duration {
	return time.Duration(c.PairingCodeTTLSeconds) * time.Second
}

func (c *Config) OfflineThreshold() time.Duration {
	return time.Duration(c.OfflineThresholdSeconds) * time.Second
}

func (c *Config) StoreLockTimeout() time.Duration {
	return time.Duration(c.StoreLockTimeoutMs) * time.Millisecond
}

// GCInterval is zero when the periodic sweep is disabled.
func (c *Config) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalSeconds) * time.Second
}

func (c *Config) AbandonedDeviceAge() time.Duration {
	return time.Duration(c.GCAbandonedDeviceAgeHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Location returns the facility time zone presets are resolved in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Dialect maps the SQL store drivers to their database dialect.
func (c *Config) Dialect() (database.Dialect, bool) {
	switch c.StoreDriver {
	case StorePostgres:
		return database.DialectPostgres, true
	case StoreSQLite:
		return database.DialectSQLite, true
	}
	return "", false
}

func (c *Config) Validate(isProduction bool) error {
	switch c.StoreDriver {
	case StoreMemory:
		if isProduction {
			log.Warn().Msg("STORE_DRIVER=memory in production: devices and pairings are lost on restart")
		}
	case StoreFile, StorePostgres, StoreSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, file, postgres, sqlite (got %q)", c.StoreDriver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if err := positive("PAIRING_CODE_TTL_SECONDS", c.PairingCodeTTLSeconds); err != nil {
		return err
	}
	if err := positive("OFFLINE_THRESHOLD_SECONDS", c.OfflineThresholdSeconds); err != nil {
		return err
	}
	if err := positive("STORE_LOCK_TIMEOUT_MS", c.StoreLockTimeoutMs); err != nil {
		return err
	}
	if err := positive("HEARTBEAT_SAMPLE_CAPACITY", c.HeartbeatSampleCapacity); err != nil {
		return err
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be greater than zero")
	}
	if c.GCIntervalSeconds < 0 {
		return fmt.Errorf("GC_INTERVAL_SECONDS must not be negative")
	}
	if c.GCAbandonedDeviceAgeHours < 0 {
		return fmt.Errorf("GC_ABANDONED_DEVICE_AGE_HOURS must not be negative")
	}

	if c.AdminTokenSHA256 != "" {
		c.AdminTokenSHA256 = strings.ToLower(c.AdminTokenSHA256)
		if !sha256Hex.MatchString(c.AdminTokenSHA256) {
			return fmt.Errorf("ADMIN_TOKEN_SHA256 must be a hex SHA-256 digest (generate with: go run scripts/admin-token.go)")
		}
	}

	if isProduction {
		if c.AdminTokenSHA256 == "" {
			log.Warn().Msg("ADMIN_TOKEN_SHA256 is empty in production: admin endpoints are unauthenticated")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func positive(name string, value int) error {
	if value <= 0 {
		return fmt.Errorf("%s must be greater than zero", name)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
