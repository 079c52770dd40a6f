package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/coffersTech/uploadlog/internal/store"
)

type Config struct {
	// Server
	Addr    string `env:"UPLOADLOG_ADDR" envDefault:":8080"`
	Backend string `env:"UPLOADLOG_BACKEND" envDefault:"file"`
	WebDir  string `env:"UPLOADLOG_WEB_DIR"`

	// Storage
	DataFile   string `env:"UPLOADLOG_DATA_FILE" envDefault:"data/uploads.json"`
	SQLitePath string `env:"UPLOADLOG_SQLITE_PATH" envDefault:"data/uploads.db"`

	// Snapshots; an empty schedule disables them
	SnapshotDir       string        `env:"UPLOADLOG_SNAPSHOT_DIR" envDefault:"data/snapshots"`
	SnapshotSchedule  string        `env:"UPLOADLOG_SNAPSHOT_SCHEDULE" envDefault:"@hourly"`
	SnapshotRetention time.Duration `env:"UPLOADLOG_SNAPSHOT_RETENTION" envDefault:"168h"`

	// Client commands
	ServerURL     string        `env:"UPLOADLOG_SERVER_URL" envDefault:"http://localhost:8080"`
	PollInterval  time.Duration `env:"UPLOADLOG_POLL_INTERVAL" envDefault:"5s"`
	ClientTimeout time.Duration `env:"UPLOADLOG_CLIENT_TIMEOUT" envDefault:"10s"`
}

// Load reads envFiles (missing ones are skipped) into the process
// environment without overriding variables already set, then parses the
// environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case store.BackendFile, store.BackendSQLite:
	default:
		return fmt.Errorf("UPLOADLOG_BACKEND must be %q or %q, got %q", store.BackendFile, store.BackendSQLite, c.Backend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("UPLOADLOG_POLL_INTERVAL must be positive")
	}
	if c.ClientTimeout <= 0 {
		return fmt.Errorf("UPLOADLOG_CLIENT_TIMEOUT must be positive")
	}
	return nil
}

// StorePath is the path the selected backend persists to.
func (c *Config) StorePath() string {
	if c.Backend == store.BackendSQLite {
		return c.SQLitePath
	}
	return c.DataFile
}
