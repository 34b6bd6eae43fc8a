package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP(S) server.
	Addr string `env:"LATTICE_ADDR, default=:8448"`

	// ServerName is the name this server qualifies identifiers with
	// (the part after ":" in user IDs).
	ServerName string `env:"LATTICE_SERVER_NAME, default=localhost"`

	// DatabasePath is the path of the SQLite database file.
	DatabasePath string `env:"LATTICE_DATABASE_PATH, default=./lattice.db"`

	// MasterSecret seeds the key that access tokens are verified against.
	MasterSecret string `env:"LATTICE_MASTER_SECRET"`

	// Proxied controls whether the X-Forwarded-For header is trusted when
	// resolving a connecting client's address.
	Proxied bool `env:"LATTICE_PROXIED"`

	// Compress enables permessage-deflate on accepted connections.
	Compress bool `env:"LATTICE_COMPRESS"`

	// FilterTimelineLimit caps the timeline limit of client-supplied
	// inline filters.
	FilterTimelineLimit int `env:"LATTICE_FILTER_TIMELINE_LIMIT, default=100"`

	// SyncTimeout is the long-poll timeout for every sync call after the
	// initial one.
	SyncTimeout time.Duration `env:"LATTICE_SYNC_TIMEOUT, default=90s"`

	Debug bool `env:"LATTICE_DEBUG"`

	AllowedOrigins []string `env:"LATTICE_ALLOWED_ORIGINS, default=*"`
}

// Load loads server configuration from the environment, reading .env.local
// first when present.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env.local: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}

	if cfg.MasterSecret == "" {
		return nil, fmt.Errorf("LATTICE_MASTER_SECRET environment variable is required")
	}

	return &cfg, nil
}
