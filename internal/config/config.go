// Package config loads runtime configuration for the panel server and the
// admin tool.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment variables (DATABASE_URL, HOST, PORT and PANEL_*).
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "24h" or
// integer nanoseconds:
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 5000,
//	  "database_url": "snore_system.db",
//	  "secret": "…at least 32 bytes…",
//	  "session_ttl": "24h",
//	  "remember_me_ttl": "720h"
//	}
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/snoreguard/panel/core"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	MinSecretLength = 32
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Config holds runtime settings.
type Config struct {
	Host string
	Port int

	// DatabaseDriver is one of memory, sqlite or postgres. Empty means
	// detect from DatabaseURL.
	DatabaseDriver string
	DatabaseURL    string

	// Secret keys the session token hash. Rotating it signs everybody out.
	Secret string

	SessionTTL    time.Duration
	RememberMeTTL time.Duration
	SweepInterval time.Duration

	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxSize int

	ActivityQueueSize int

	CookieSecure bool
	BasePath     string

	// DeviceUpstream is the embedded controller that serves /api/device/*.
	// Empty disables the proxy.
	DeviceUpstream string

	// SnoreClass is the classifier label counted as snoring in detection
	// summaries.
	SnoreClass string

	LogLevel string
}

// LoadDefaults populates Config with development defaults.
// NOTE: Secret is left empty on purpose and must be provided.
func (c *Config) LoadDefaults() {
	c.Host = "0.0.0.0"
	c.Port = 5000
	c.DatabaseURL = "snore_system.db"
	c.SessionTTL = 24 * time.Hour
	c.RememberMeTTL = 30 * 24 * time.Hour
	c.SweepInterval = time.Hour
	c.CacheEnabled = true
	c.CacheTTL = 5 * time.Minute
	c.CacheMaxSize = 500
	c.ActivityQueueSize = 256
	c.BasePath = "/api/auth"
	c.SnoreClass = "กรน"
	c.LogLevel = "info"
}

// Load builds a Config from defaults, an optional JSON file, the
// environment and finally args (usually os.Args[1:]).
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Driver returns the configured driver, detecting it from the URL when unset.
func (c *Config) Driver() string {
	if c.DatabaseDriver != "" {
		return strings.ToLower(c.DatabaseDriver)
	}
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return DriverPostgres
	case c.DatabaseURL == ":memory:":
		return DriverMemory
	default:
		return DriverSQLite
	}
}

func (c *Config) SessionConfig() core.SessionConfig {
	return core.SessionConfig{
		MaxAge:           c.SessionTTL,
		RememberMeMaxAge: c.RememberMeTTL,
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return core.ErrSecretRequired
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("%w: need at least %d bytes", core.ErrSecretTooShort, MinSecretLength)
	}
	switch c.Driver() {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.DatabaseDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SessionTTL <= 0 || c.RememberMeTTL <= 0 {
		return errors.New("session lifetimes must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	return nil
}
