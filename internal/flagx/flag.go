// Package flagx contains helpers for parsing only a subset of command-line
// flags, so several loaders can share one argument list.
//
// The config package parses os.Args[1:] twice: once for the config file
// path and once for the regular flags. The admin tool adds subcommand
// arguments on top. A plain flag.FlagSet stops at the first flag it does
// not know, so each pass first narrows the arguments with FilterArgs.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns a slice of command-line arguments that only contains
// the allowed flags (and their values) specified in allowedFlags.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// Parameters:
//
//	args          the command-line arguments (usually os.Args[1:])
//	allowedFlags  flag names including their dashes (e.g. []string{"-c", "--config"})
//
// Returns:
//
//	A non-nil slice holding the allowed flags in their original order, each
//	followed by its value when the value was passed as a separate argument.
//
// A separate value is recognised only when it does not start with '-', so a
// boolean flag followed by another flag keeps no value. Negative numbers
// must therefore use the '=' form (-offset=-1).
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--flag=value" or "-f=value"
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		// flag as a separate argument, value might follow
		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags extracts the config file path given via -c, -config or
// --config.
//
// Only these flags are parsed; every other argument is ignored, so callers
// can parse their own flags from the same args afterwards. Parse errors are
// ignored.
//
// An empty string means no file was requested.
func JsonConfigFlags(args []string) string {
	var config string

	filtered := FilterArgs(args, []string{"-c", "-config", "--config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(filtered)

	return config
}
