// Package config loads and validates the proxy's runtime configuration
// from the environment, following the teacher's env+validator pattern.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

// ByteSize decodes sizes like "10MB", "5GB", "100KB" from the
// environment into a byte count.
type ByteSize int64

func (b *ByteSize) UnmarshalText(data []byte) error {
	value := string(data)
	value = strings.TrimSpace(strings.ToUpper(value))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(value, "GB"):
		multiplier = 1 << 30
		value = strings.TrimSuffix(value, "GB")
	case strings.HasSuffix(value, "MB"):
		multiplier = 1 << 20
		value = strings.TrimSuffix(value, "MB")
	case strings.HasSuffix(value, "KB"):
		multiplier = 1 << 10
		value = strings.TrimSuffix(value, "KB")
	case strings.HasSuffix(value, "B"):
		multiplier = 1
		value = strings.TrimSuffix(value, "B")
	}
	num, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*b = ByteSize(num * float64(multiplier))
	return nil
}

// Config holds the configuration for the cache proxy, combining
// proxy-listener settings with the response cache's own knobs
// (cache directory, size bound, schema version).
type Config struct {
	ListenAddr    string        `env:"LISTEN_ADDR" envDefault:":8090"`
	CacheDir      string        `env:"CACHE_DIR" envDefault:"cache" validate:"required"`
	MaxSize       ByteSize      `env:"MAX_SIZE" envDefault:"10GB"`
	EntryMaxSize  ByteSize      `env:"ENTRY_MAX_SIZE" envDefault:"500MB"`
	EntryTTL      time.Duration `env:"ENTRY_TTL" envDefault:"1h"`
	EnableLogging bool          `env:"ENABLE_LOGGING" envDefault:"true"`

	// IgnoreServerCacheControl, when true, stores a response even if
	// its Cache-Control/Expires headers would normally forbid it.
	IgnoreServerCacheControl bool `env:"IGNORE_SERVER_CACHE_CONTROL" envDefault:"false"`

	// SchemaVersion is validated (>= 1) and printed. It is not passed
	// to the cache: httpcache.New always declares schema version 1.
	SchemaVersion uint32 `env:"SCHEMA_VERSION" envDefault:"1" validate:"gte=1"`
}

// Load parses Config from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Print() {
	log.Info("Config:")
	log.Info("  ListenAddr: %s", c.ListenAddr)
	log.Info("  CacheDir: %s", c.CacheDir)
	log.Info("  MaxSize: %s", humanize.IBytes(uint64(c.MaxSize)))
	log.Info("  EntryMaxSize: %s", humanize.IBytes(uint64(c.EntryMaxSize)))
	log.Info("  EntryTTL: %s", c.EntryTTL)
	log.Info("  EnableLogging: %t", c.EnableLogging)
	log.Info("  IgnoreServerCacheControl: %t", c.IgnoreServerCacheControl)
	log.Info("  SchemaVersion: %d", c.SchemaVersion)
}
