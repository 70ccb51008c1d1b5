package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int `yaml:"port"`

	// Handle is the Bluesky account handle used for session creation and
	// as the author-feed actor.
	Handle string `yaml:"handle"`

	// AppPassword is the Bluesky app password. Env-only; never read from
	// the config file.
	AppPassword string `yaml:"-"`

	// PDS is the AT Protocol service URL.
	PDS string `yaml:"pds"`

	// DatabasePath is the SQLite database file path.
	DatabasePath string `yaml:"databasePath"`

	// ExcludePattern is the hard-exclusion regular expression. A post
	// matching it is never ingested.
	ExcludePattern string `yaml:"excludePattern"`

	// Timezone is the IANA zone used to derive each post's local day.
	Timezone string `yaml:"timezone"`

	// SearchQuery is the keyword search issued each run.
	SearchQuery string `yaml:"searchQuery"`

	// SearchLimit and FeedLimit cap the two upstream result sets.
	SearchLimit int `yaml:"searchLimit"`
	FeedLimit   int `yaml:"feedLimit"`

	// IngestInterval is the cadence of scheduled pipeline runs. Set via
	// the INGEST_INTERVAL environment variable (Go duration syntax).
	IngestInterval time.Duration `yaml:"-"`

	// FirehoseURL is the Jetstream WebSocket endpoint for the live tail.
	// Empty disables the live tail.
	FirehoseURL string `yaml:"firehoseUrl"`
}

// Load reads the optional YAML file named by MONITOR_CONFIG, then applies
// environment overrides, then validates. Required settings that are still
// missing fail here, before any network or storage work begins.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           3000,
		PDS:            "https://bsky.social",
		Timezone:       "America/Chicago",
		SearchQuery:    "ICE Chicago",
		SearchLimit:    50,
		FeedLimit:      30,
		IngestInterval: 15 * time.Minute,
	}

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if cfg.Handle == "" {
		return nil, fmt.Errorf("BLUESKY_HANDLE is required")
	}
	if cfg.AppPassword == "" {
		return nil, fmt.Errorf("BLUESKY_APP_PASSWORD is required")
	}
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("DATABASE_PATH is required")
	}
	if cfg.ExcludePattern == "" {
		return nil, fmt.Errorf("HARD_EXCLUDE_REGEX is required")
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("BLUESKY_HANDLE"); v != "" {
		c.Handle = v
	}
	if v := os.Getenv("BLUESKY_APP_PASSWORD"); v != "" {
		c.AppPassword = v
	}
	if v := os.Getenv("BLUESKY_PDS"); v != "" {
		c.PDS = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("HARD_EXCLUDE_REGEX"); v != "" {
		c.ExcludePattern = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("SEARCH_QUERY"); v != "" {
		c.SearchQuery = v
	}
	if v := os.Getenv("INGEST_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid INGEST_INTERVAL: %w", err)
		}
		c.IngestInterval = interval
	}
	if v := os.Getenv("FIREHOSE_URL"); v != "" {
		c.FirehoseURL = v
	}
	return nil
}
