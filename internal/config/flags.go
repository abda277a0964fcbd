package config

import (
	"flag"
	"io"

	"github.com/snoreguard/panel/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     listen host
//	-p int        listen port
//	-d string     database URL (file path or postgres:// DSN)
//	-driver       memory | sqlite | postgres
//	-s string     token hashing secret
//	-u string     device controller upstream URL
//	-l string     log level
//	-ttl          default session lifetime
//	-remember-ttl remember-me session lifetime
//
// Arguments are filtered with flagx.FilterArgs first so -c/-config and
// subcommand arguments do not trip the parser.
func parseFlags(config *Config, args []string) error {
	names := []string{"-a", "-p", "-d", "-driver", "-s", "-u", "-l", "-ttl", "-remember-ttl"}
	filtered := flagx.FilterArgs(args, names)

	fs := flag.NewFlagSet("panel", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.Host, "a", config.Host, "listen host")
	fs.IntVar(&config.Port, "p", config.Port, "listen port")
	fs.StringVar(&config.DatabaseURL, "d", config.DatabaseURL, "database URL")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.Secret, "s", config.Secret, "token hashing secret")
	fs.StringVar(&config.DeviceUpstream, "u", config.DeviceUpstream, "device controller upstream")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.DurationVar(&config.SessionTTL, "ttl", config.SessionTTL, "session lifetime")
	fs.DurationVar(&config.RememberMeTTL, "remember-ttl", config.RememberMeTTL, "remember-me session lifetime")

	return fs.Parse(filtered)
}
