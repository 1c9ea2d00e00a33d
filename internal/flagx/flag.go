// Package flagx holds the small pre-parsing step that lets a binary find its
// config sources before its own flag set runs.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs keeps only the flags named in allowedFlags, together with their
// values. Both "-c conf.json" and "--config=conf.json" forms are recognised.
// A following token that starts with "-" is never taken as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

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

// Sources names the optional files a binary reads configuration from.
type Sources struct {
	JSON string // -c / -config
	Env  string // -env
}

// ConfigSources extracts -c/-config and -env from args (usually
// os.Args[1:]). Every other argument is ignored so that the caller's own
// flag set can parse the rest afterwards.
func ConfigSources(args []string) Sources {
	var s Sources

	filtered := FilterArgs(args, []string{"-c", "-config", "--config", "-env", "--env"})

	fs := flag.NewFlagSet("sources", flag.ContinueOnError)
	fs.StringVar(&s.JSON, "config", "", "Path to JSON config file")
	fs.StringVar(&s.JSON, "c", "", "Path to JSON config file (short)")
	fs.StringVar(&s.Env, "env", "", "Path to .env file")
	_ = fs.Parse(filtered)

	return s
}
