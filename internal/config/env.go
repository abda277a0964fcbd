package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/snoreguard/panel/internal/timex"
)

// parseEnv overlays values from the environment. DATABASE_URL, HOST and
// PORT keep the names the previous deployment used.
func parseEnv(config *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}

	strs := map[string]*string{
		"HOST":                  &config.Host,
		"DATABASE_URL":          &config.DatabaseURL,
		"PANEL_DATABASE_DRIVER": &config.DatabaseDriver,
		"PANEL_SECRET":          &config.Secret,
		"PANEL_BASE_PATH":       &config.BasePath,
		"PANEL_DEVICE_UPSTREAM": &config.DeviceUpstream,
		"PANEL_SNORE_CLASS":     &config.SnoreClass,
		"PANEL_LOG_LEVEL":       &config.LogLevel,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":                      &config.Port,
		"PANEL_CACHE_MAX_SIZE":      &config.CacheMaxSize,
		"PANEL_ACTIVITY_QUEUE_SIZE": &config.ActivityQueueSize,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"PANEL_SESSION_TTL":     &config.SessionTTL,
		"PANEL_REMEMBER_ME_TTL": &config.RememberMeTTL,
		"PANEL_SWEEP_INTERVAL":  &config.SweepInterval,
		"PANEL_CACHE_TTL":       &config.CacheTTL,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			var d timex.Duration
			if err := d.UnmarshalJSON([]byte(strconv.Quote(v))); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d.Duration
		}
	}

	bools := map[string]*bool{
		"PANEL_CACHE_ENABLED": &config.CacheEnabled,
		"PANEL_COOKIE_SECURE": &config.CookieSecure,
	}
	for key, dst := range bools {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
