// Package flagx lets several components share os.Args: each one picks out
// only the flags it owns and parses them with its own flag.FlagSet.
package flagx

import (
	"flag"
	"os"
	"strings"
)

func flagName(arg string) string {
	name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
	return name
}

// FilterArgs keeps the named flags of args together with their values and
// drops everything else. Names are given without dashes; "-x", "--x" and
// "-x=v" forms all match "x". A value is taken from the next argument when
// that argument does not itself start with a dash.
func FilterArgs(args []string, names ...string) []string {
	owned := make(map[string]bool, len(names))
	for _, n := range names {
		owned[strings.TrimLeft(n, "-")] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || !owned[flagName(arg)] {
			continue
		}

		out = append(out, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, args[i])
		}
	}
	return out
}

// ConfigPath returns the value of -c / -config in args, or "".
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to a .json, .yaml or .yml config file")
	fs.StringVar(&path, "c", "", "shorthand for -config")
	_ = fs.Parse(FilterArgs(args, "c", "config"))

	return path
}

// ConfigFileFlag is ConfigPath over the process arguments.
func ConfigFileFlag() string {
	return ConfigPath(os.Args[1:])
}
