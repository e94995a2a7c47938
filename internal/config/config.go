// Package config loads the server configuration from YAML and the
// environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stayledger/backend/internal/storage/models"
)

// PropertyConfig seeds a property and its feed URLs, keyed by origin.
type PropertyConfig struct {
	ID    string            `yaml:"id"`
	Name  string            `yaml:"name"`
	Feeds map[string]string `yaml:"feeds"`
}

// Config is the top-level server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`

	// SyncSchedule is the cron spec of the global sync, e.g. "@every 15m".
	SyncSchedule string `yaml:"sync_schedule"`

	// Feed download settings.
	FeedTimeout   time.Duration `yaml:"feed_timeout"`
	FeedRetries   int           `yaml:"feed_retries"`
	FeedRetryBase time.Duration `yaml:"feed_retry_base"`

	// Retries of failed database calls during a sync.
	StoreRetries   int           `yaml:"store_retries"`
	StoreRetryBase time.Duration `yaml:"store_retry_base"`

	// PropertyTimeout caps a single property sync.
	PropertyTimeout time.Duration `yaml:"property_timeout"`

	OriginWorkers   int `yaml:"origin_workers"`
	PropertyWorkers int `yaml:"property_workers"`

	// Entries outside [today-PastWindowDays, today+FutureWindowDays] are ignored.
	PastWindowDays   int `yaml:"past_window_days"`
	FutureWindowDays int `yaml:"future_window_days"`

	Properties []PropertyConfig `yaml:"properties"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Listen:           ":8099",
		DataDir:          "/data",
		SyncSchedule:     "@every 15m",
		FeedTimeout:      30 * time.Second,
		FeedRetries:      2,
		FeedRetryBase:    500 * time.Millisecond,
		StoreRetries:     2,
		StoreRetryBase:   100 * time.Millisecond,
		PropertyTimeout:  60 * time.Second,
		OriginWorkers:    3,
		PropertyWorkers:  8,
		PastWindowDays:   30,
		FutureWindowDays: 365,
	}
}

// Normalize fills in missing or invalid values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.SyncSchedule == "" {
		c.SyncSchedule = d.SyncSchedule
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = d.FeedTimeout
	}
	if c.FeedRetries < 0 {
		c.FeedRetries = d.FeedRetries
	}
	if c.FeedRetryBase <= 0 {
		c.FeedRetryBase = d.FeedRetryBase
	}
	if c.StoreRetries < 0 {
		c.StoreRetries = d.StoreRetries
	}
	if c.StoreRetryBase <= 0 {
		c.StoreRetryBase = d.StoreRetryBase
	}
	if c.PropertyTimeout <= 0 {
		c.PropertyTimeout = d.PropertyTimeout
	}
	if c.OriginWorkers <= 0 {
		c.OriginWorkers = d.OriginWorkers
	}
	if c.PropertyWorkers <= 0 {
		c.PropertyWorkers = d.PropertyWorkers
	}
	if c.PastWindowDays <= 0 {
		c.PastWindowDays = d.PastWindowDays
	}
	if c.FutureWindowDays <= 0 {
		c.FutureWindowDays = d.FutureWindowDays
	}
}

// Validate checks the seeded properties.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Properties))
	for i, p := range c.Properties {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("properties[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("properties[%d]: duplicate id %q", i, id)
		}
		seen[id] = true

		for origin := range p.Feeds {
			o := models.Origin(origin)
			if !o.Valid() || o == models.OriginManual {
				return fmt.Errorf("property %s: unknown feed origin %q", id, origin)
			}
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and
// normalizes the result. An empty path or a missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			cfg = &Config{FeedRetries: -1, StoreRetries: -1}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with STAYLEDGER_* environment variables.
func (c *Config) applyEnv() error {
	c.Listen = getEnv("STAYLEDGER_LISTEN", c.Listen)
	c.DataDir = getEnv("STAYLEDGER_DATA_DIR", c.DataDir)
	c.SyncSchedule = getEnv("STAYLEDGER_SYNC_SCHEDULE", c.SyncSchedule)

	if v := getEnv("STAYLEDGER_FEED_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STAYLEDGER_FEED_TIMEOUT: %w", err)
		}
		c.FeedTimeout = d
	}
	if v := getEnv("STAYLEDGER_PROPERTY_WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STAYLEDGER_PROPERTY_WORKERS: %w", err)
		}
		c.PropertyWorkers = n
	}
	return nil
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Seeder is the storage the configured properties are written to.
type Seeder interface {
	UpsertProperty(ctx context.Context, p *models.Property) error
	UpsertFeed(ctx context.Context, feed *models.FeedSubscription) error
}

// Seed writes the configured properties and feeds. Feeds with an empty URL
// are stored disabled.
func (c *Config) Seed(ctx context.Context, store Seeder) error {
	for _, p := range c.Properties {
		if err := store.UpsertProperty(ctx, &models.Property{ID: p.ID, Name: p.Name}); err != nil {
			return fmt.Errorf("seeding property %s: %w", p.ID, err)
		}
		for origin, url := range p.Feeds {
			feed := &models.FeedSubscription{
				PropertyID: p.ID,
				Origin:     models.Origin(origin),
				URL:        strings.TrimSpace(url),
				Enabled:    strings.TrimSpace(url) != "",
			}
			if err := store.UpsertFeed(ctx, feed); err != nil {
				return fmt.Errorf("seeding %s feed of %s: %w", origin, p.ID, err)
			}
		}
	}
	return nil
}
