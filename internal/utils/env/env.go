package env

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse parses KEY=VALUE specs. A bare KEY takes its value from the current
// environment and fails if it's not set.
func Parse(specs []string) (map[string]string, error) {
	vars := make(map[string]string, len(specs))

	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !keyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable %q", spec)
		}

		if !ok {
			value, ok = os.LookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set", key)
			}
		}

		vars[key] = value
	}

	return vars, nil
}

// Environ returns the current process environment with vars appended in key
// order, on duplicated keys the last one wins.
func Environ(vars map[string]string) []string {
	res := os.Environ()
	if len(vars) == 0 {
		return res
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		res = append(res, k+"="+vars[k])
	}
	return res
}
