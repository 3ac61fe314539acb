package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "SBVC"

// Config holds process configuration loaded from environment variables.
type Config struct {
	ProjectsRoot string `envconfig:"PROJECTS_ROOT" default:"projects"`
	HashAlgo     string `envconfig:"HASH" default:"xxh3"`

	// LockTimeout bounds how long a mutating call waits for the project
	// lock. Zero waits forever.
	LockTimeout time.Duration `envconfig:"LOCK_TIMEOUT" default:"0s"`

	MaxEntrySize      int64 `envconfig:"MAX_ENTRY_SIZE" default:"268435456"`
	RevisionCacheSize int   `envconfig:"REVISION_CACHE_SIZE" default:"64"`

	CommitterName  string `envconfig:"COMMITTER_NAME" default:"sbvc"`
	CommitterEmail string `envconfig:"COMMITTER_EMAIL" default:"sbvc@localhost"`

	// RemoteToken authenticates push and pull when no token is passed
	// explicitly. It is never written to disk or logged.
	RemoteToken string `envconfig:"REMOTE_TOKEN"`

	RelayAddr string `envconfig:"RELAY_ADDR" default:"127.0.0.1:8000"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:"127.0.0.1:8080"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"` // "console" | "json"
	Debug     bool   `envconfig:"DEBUG" default:"false"`
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.ProjectsRoot == "" {
		return fmt.Errorf("projects root must not be empty")
	}
	if !ValidHash(c.HashAlgo) {
		return fmt.Errorf("unsupported hash %q: want xxh3 or sha256", c.HashAlgo)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}
	if c.MaxEntrySize <= 0 {
		return fmt.Errorf("max entry size must be positive")
	}
	return nil
}

// Load reads configuration from SBVC_* environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix(EnvPrefix)
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration Load yields with no environment set.
func Default() *Config {
	return &Config{
		ProjectsRoot:      "projects",
		HashAlgo:          DefaultHash,
		LockTimeout:       DefaultLockTimeout,
		MaxEntrySize:      DefaultMaxEntrySize,
		RevisionCacheSize: DefaultRevisionCacheSize,
		CommitterName:     "sbvc",
		CommitterEmail:    "sbvc@localhost",
		RelayAddr:         "127.0.0.1:8000",
		HTTPAddr:          "127.0.0.1:8080",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}
