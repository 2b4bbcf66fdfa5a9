package process

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateSpec checks an execution spec for the obvious misconfigurations
// before any syscalls are made.
func ValidateSpec(spec Spec) error {
	if strings.TrimSpace(spec.Command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if spec.Directory != "" && !filepath.IsAbs(spec.Directory) {
		return fmt.Errorf("working directory must be absolute: %s", spec.Directory)
	}
	for _, kv := range spec.Environment {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("malformed environment entry: %s", kv)
		}
	}
	return nil
}
