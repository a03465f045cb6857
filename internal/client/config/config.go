package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the FinanceKit client.
//
// Units: all durations are time.Duration; DEKSize is in bytes.
type Config struct {
	ServerBaseURL     string `env:"SERVER_URL"`
	APIPrefix         string `env:"API_PREFIX"`
	DeviceID          string `env:"DEVICE_ID"`
	DataDir           string `env:"DATA_DIR"`
	SecureStoreSecret string `env:"SECURE_STORE_SECRET"`
	LogLevel          string `env:"LOG_LEVEL"`

	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT"`
	RefreshSkew         time.Duration `env:"REFRESH_SKEW"`
	GrantTTL            time.Duration `env:"GRANT_TTL"`
	GrantNotBeforeSkew  time.Duration `env:"GRANT_NBF_SKEW"`
	UndoWindow          time.Duration `env:"UNDO_WINDOW"`
	DEKSize             int           `env:"DEK_SIZE"`
}

// EnvPrefix prefixes every environment variable the client reads.
const EnvPrefix = "FINANCEKIT_"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://10.0.2.2:8000"
	c.APIPrefix = "/api/v1"
	c.DataDir = defaultDataDir()
	c.LogLevel = "info"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.RefreshSkew = 60 * time.Second
	c.GrantTTL = 120 * time.Second
	c.GrantNotBeforeSkew = 5 * time.Second
	c.UndoWindow = 5 * time.Second
	c.DEKSize = 32
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "financekit")
	}
	return ".financekit"
}

// SecurePath is the sealed credential database.
func (c *Config) SecurePath() string { return filepath.Join(c.DataDir, "secure.db") }

// CachePath is the bulk cache database.
func (c *Config) CachePath() string { return filepath.Join(c.DataDir, "cache.db") }

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ServerBaseURL == "":
		return fmt.Errorf("server url is empty")
	case c.DataDir == "":
		return fmt.Errorf("data dir is empty")
	case c.DEKSize != 16 && c.DEKSize != 24 && c.DEKSize != 32:
		return fmt.Errorf("dek size must be 16, 24 or 32, got %d", c.DEKSize)
	case c.GrantTTL <= 0 || c.GrantTTL > 5*time.Minute:
		return fmt.Errorf("grant ttl must be in (0, 5m], got %s", c.GrantTTL)
	case c.OnlineCheckInterval <= 0:
		return fmt.Errorf("online check interval must be positive")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
