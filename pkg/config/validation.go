package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/monitoring"
	"github.com/tradex-ops/tradexd/pkg/process"
)

// Validate checks the whole configuration and collects every problem
// instead of stopping at the first one.
func (c *Config) Validate() error {
	collection := errors.NewErrorCollection()

	if _, _, err := net.SplitHostPort(c.Supervisor.ControlAddr); err != nil {
		collection.Add(fmt.Errorf("invalid control_addr %q: %w", c.Supervisor.ControlAddr, err))
	}
	if !filepath.IsAbs(c.Supervisor.LogDirectory) {
		collection.Add(fmt.Errorf("log_directory must be absolute: %s", c.Supervisor.LogDirectory))
	}
	if !filepath.IsAbs(c.Supervisor.PIDDirectory) {
		collection.Add(fmt.Errorf("pid_directory must be absolute: %s", c.Supervisor.PIDDirectory))
	}
	if c.Supervisor.ForceShutdownTimeout < 0 {
		collection.Add(fmt.Errorf("force_shutdown_timeout cannot be negative: %v", c.Supervisor.ForceShutdownTimeout))
	}

	if len(c.Programs) == 0 {
		collection.Add(fmt.Errorf("at least one program must be configured"))
	}

	seenNames := make(map[string]bool)
	seenPorts := make(map[int]string)

	for i := range c.Programs {
		p := &c.Programs[i]
		prefix := fmt.Sprintf("program %q", p.Name)
		if p.Name == "" {
			prefix = fmt.Sprintf("program #%d", i)
		}

		if err := validateProgramName(p.Name); err != nil {
			collection.Add(fmt.Errorf("%s: %w", prefix, err))
		} else if seenNames[p.Name] {
			collection.Add(fmt.Errorf("%s: duplicate program name", prefix))
		}
		seenNames[p.Name] = true

		if strings.TrimSpace(p.Command) == "" {
			collection.Add(fmt.Errorf("%s: command cannot be empty", prefix))
		}
		if p.Directory != "" && !filepath.IsAbs(p.Directory) {
			collection.Add(fmt.Errorf("%s: directory must be absolute: %s", prefix, p.Directory))
		}

		switch p.Restart {
		case RestartNever, RestartOnFailure, RestartAlways:
		default:
			collection.Add(fmt.Errorf("%s: invalid restart policy %q (never, on-failure, always)", prefix, p.Restart))
		}

		if p.StartSecs < 0 {
			collection.Add(fmt.Errorf("%s: start_secs cannot be negative: %v", prefix, p.StartSecs))
		}
		if p.StartRetries < 0 {
			collection.Add(fmt.Errorf("%s: start_retries cannot be negative: %d", prefix, p.StartRetries))
		}
		if p.BackoffRate < 1.0 {
			collection.Add(fmt.Errorf("%s: backoff_rate must be at least 1.0: %g", prefix, p.BackoffRate))
		}
		if p.StopWait <= 0 {
			collection.Add(fmt.Errorf("%s: stop_wait must be positive: %v", prefix, p.StopWait))
		}
		if _, err := process.SignalFromName(p.StopSignal); err != nil {
			collection.Add(fmt.Errorf("%s: %w", prefix, err))
		}

		if p.Port != 0 {
			if p.Port < 1 || p.Port > 65535 {
				collection.Add(fmt.Errorf("%s: invalid port: %d", prefix, p.Port))
			} else if owner, taken := seenPorts[p.Port]; taken {
				collection.Add(fmt.Errorf("%s: port %d already used by program %q", prefix, p.Port, owner))
			} else {
				seenPorts[p.Port] = p.Name
			}
		}

		if err := monitoring.ValidateHealthCheckConfig(p.HealthCheck); err != nil {
			collection.Add(fmt.Errorf("%s: %w", prefix, err))
		}
	}

	return collection.ToError()
}

func validateProgramName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			continue
		}
		return fmt.Errorf("name contains invalid character %q (use letters, digits, '_' and '-')", r)
	}
	return nil
}
