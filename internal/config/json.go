package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/snoreguard/panel/internal/flagx"
	"github.com/snoreguard/panel/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer fields
// distinguish "absent" from zero so a partial file only overrides what it
// names.
type JsonConfig struct {
	Host              *string         `json:"host"`
	Port              *int            `json:"port"`
	DatabaseDriver    *string         `json:"database_driver"`
	DatabaseURL       *string         `json:"database_url"`
	Secret            *string         `json:"secret"`
	SessionTTL        *timex.Duration `json:"session_ttl"`
	RememberMeTTL     *timex.Duration `json:"remember_me_ttl"`
	SweepInterval     *timex.Duration `json:"sweep_interval"`
	CacheEnabled      *bool           `json:"cache_enabled"`
	CacheTTL          *timex.Duration `json:"cache_ttl"`
	CacheMaxSize      *int            `json:"cache_max_size"`
	ActivityQueueSize *int            `json:"activity_queue_size"`
	CookieSecure      *bool           `json:"cookie_secure"`
	BasePath          *string         `json:"base_path"`
	DeviceUpstream    *string         `json:"device_upstream"`
	SnoreClass        *string         `json:"snore_class"`
	LogLevel          *string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config, if any.
func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.Host, c.Host)
	setInt(&config.Port, c.Port)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseURL, c.DatabaseURL)
	setString(&config.Secret, c.Secret)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.RememberMeTTL, c.RememberMeTTL)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setBool(&config.CacheEnabled, c.CacheEnabled)
	setDuration(&config.CacheTTL, c.CacheTTL)
	setInt(&config.CacheMaxSize, c.CacheMaxSize)
	setInt(&config.ActivityQueueSize, c.ActivityQueueSize)
	setBool(&config.CookieSecure, c.CookieSecure)
	setString(&config.BasePath, c.BasePath)
	setString(&config.DeviceUpstream, c.DeviceUpstream)
	setString(&config.SnoreClass, c.SnoreClass)
	setString(&config.LogLevel, c.LogLevel)
	return nil
}
