// Package envfile loads per-program environment files in the dotenv format
// used by systemd's EnvironmentFile directive and the applications' .env.
package envfile

import (
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tradex-ops/tradexd/pkg/errors"
)

// Load reads a dotenv file and returns its variables. A path prefixed with
// "-" marks the file optional, matching systemd's EnvironmentFile=-/path
// semantics: a missing optional file yields an empty map, a missing
// required file is an error.
func Load(path string) (map[string]string, error) {
	optional := false
	if strings.HasPrefix(path, "-") {
		optional = true
		path = strings.TrimPrefix(path, "-")
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && optional {
			return map[string]string{}, nil
		}
		return nil, errors.NewIOError("environment file not accessible", err).WithContext("path", path)
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.NewIOError("failed to parse environment file", err).WithContext("path", path)
	}
	return vars, nil
}

// Merge layers environments left to right, later maps overriding earlier
// ones, and returns KEY=VALUE pairs sorted by key. base is typically
// os.Environ of the supervisor.
func Merge(base []string, overlays ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	for _, kv := range base {
		if idx := strings.Index(kv, "="); idx >= 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}
	for _, overlay := range overlays {
		for key, value := range overlay {
			merged[key] = value
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, key := range keys {
		result = append(result, key+"="+merged[key])
	}
	return result
}
