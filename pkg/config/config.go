// Package config defines the tradexd YAML configuration: supervisor-wide
// options plus one entry per managed program (dashboard_app, webhook_app,
// email_reader in the stock deployment).
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
	"github.com/tradex-ops/tradexd/pkg/monitoring"
)

// RestartPolicy mirrors Supervisor's autorestart values.
type RestartPolicy string

const (
	// RestartNever never restarts an exited process.
	RestartNever RestartPolicy = "never"
	// RestartOnFailure restarts unless the exit code is expected.
	RestartOnFailure RestartPolicy = "on-failure"
	// RestartAlways restarts on any exit.
	RestartAlways RestartPolicy = "always"
)

const (
	DefaultControlAddr          = "127.0.0.1:9001"
	DefaultLogDirectory         = "/var/log/tradex"
	DefaultPIDDirectory         = "/run/tradex"
	DefaultForceShutdownTimeout = 30 * time.Second
	DefaultStartSecs            = 1 * time.Second
	DefaultStartRetries         = 3
	DefaultBackoffRate          = 2.0
	DefaultStopSignal           = "TERM"
	DefaultStopWait             = 10 * time.Second
)

// SupervisorOptions configures the daemon itself.
type SupervisorOptions struct {
	// ControlAddr is the HTTP control listener, loopback by default.
	ControlAddr string `yaml:"control_addr,omitempty"`

	LogLevel     string `yaml:"log_level,omitempty"`
	LogDirectory string `yaml:"log_directory,omitempty"`
	PIDDirectory string `yaml:"pid_directory,omitempty"`

	// ForceShutdownTimeout bounds the whole daemon shutdown.
	ForceShutdownTimeout time.Duration `yaml:"force_shutdown_timeout,omitempty"`
}

// ProgramConfig describes one managed program.
type ProgramConfig struct {
	Name      string   `yaml:"name"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args,omitempty"`
	Directory string   `yaml:"directory,omitempty"`

	// Environment adds or overrides variables on top of the supervisor
	// environment and the environment file.
	Environment map[string]string `yaml:"environment,omitempty"`

	// EnvironmentFile points at a dotenv file. A leading "-" makes it
	// optional, as with systemd's EnvironmentFile=-/path.
	EnvironmentFile string `yaml:"environment_file,omitempty"`

	User  string `yaml:"user,omitempty"`
	Group string `yaml:"group,omitempty"`

	// Autostart defaults to true; nil means unset.
	Autostart *bool `yaml:"autostart,omitempty"`

	Restart   RestartPolicy `yaml:"restart,omitempty"`
	ExitCodes []int         `yaml:"exit_codes,omitempty"`

	// StartSecs is the minimum uptime before a start counts as successful.
	StartSecs    time.Duration `yaml:"start_secs,omitempty"`
	StartRetries int           `yaml:"start_retries,omitempty"`
	BackoffRate  float64       `yaml:"backoff_rate,omitempty"`

	StopSignal string        `yaml:"stop_signal,omitempty"`
	StopWait   time.Duration `yaml:"stop_wait,omitempty"`

	StdoutLogfile string `yaml:"stdout_logfile,omitempty"`
	StderrLogfile string `yaml:"stderr_logfile,omitempty"`

	// Port documents the listen port of network programs; validation uses
	// it to reject duplicate bindings.
	Port int `yaml:"port,omitempty"`

	HealthCheck monitoring.HealthCheckConfig `yaml:"health_check,omitempty"`
}

// Config is the root of the YAML document.
type Config struct {
	Supervisor SupervisorOptions `yaml:"supervisor,omitempty"`
	Programs   []ProgramConfig   `yaml:"programs"`
}

// AutostartEnabled resolves the Autostart default.
func (p *ProgramConfig) AutostartEnabled() bool {
	return p.Autostart == nil || *p.Autostart
}

// ExpectedExit reports whether code is an expected exit code for the
// on-failure policy.
func (p *ProgramConfig) ExpectedExit(code int) bool {
	for _, expected := range p.ExitCodes {
		if code == expected {
			return true
		}
	}
	return false
}

// LoadFromFile reads, defaults and validates a configuration file.
func LoadFromFile(path string, logger logging.Logger) (*Config, error) {
	logger.Infof("Loading configuration, path: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("path", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewConfigError("failed to parse configuration file", err).WithContext("path", path)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigError("configuration validation failed", err).WithContext("path", path)
	}

	logger.Infof("Configuration loaded, programs: %d, control: %s",
		len(config.Programs), config.Supervisor.ControlAddr)
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Supervisor.ControlAddr == "" {
		c.Supervisor.ControlAddr = DefaultControlAddr
	}
	if c.Supervisor.LogLevel == "" {
		c.Supervisor.LogLevel = "info"
	}
	if c.Supervisor.LogDirectory == "" {
		c.Supervisor.LogDirectory = DefaultLogDirectory
	}
	if c.Supervisor.PIDDirectory == "" {
		c.Supervisor.PIDDirectory = DefaultPIDDirectory
	}
	if c.Supervisor.ForceShutdownTimeout == 0 {
		c.Supervisor.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}

	for i := range c.Programs {
		p := &c.Programs[i]

		if p.Restart == "" {
			p.Restart = RestartOnFailure
		}
		if p.ExitCodes == nil {
			p.ExitCodes = []int{0}
		}
		if p.StartSecs == 0 {
			p.StartSecs = DefaultStartSecs
		}
		if p.StartRetries == 0 {
			p.StartRetries = DefaultStartRetries
		}
		if p.BackoffRate == 0 {
			p.BackoffRate = DefaultBackoffRate
		}
		if p.StopSignal == "" {
			p.StopSignal = DefaultStopSignal
		}
		if p.StopWait == 0 {
			p.StopWait = DefaultStopWait
		}
		if p.StdoutLogfile == "" && p.Name != "" {
			p.StdoutLogfile = filepath.Join(c.Supervisor.LogDirectory, p.Name+".out.log")
		}
		if p.StderrLogfile == "" && p.Name != "" {
			p.StderrLogfile = filepath.Join(c.Supervisor.LogDirectory, p.Name+".err.log")
		}

		if p.HealthCheck.Type != "" {
			if p.HealthCheck.RunOptions.Interval == 0 {
				p.HealthCheck.RunOptions.Interval = 30 * time.Second
			}
			if p.HealthCheck.RunOptions.Timeout == 0 {
				p.HealthCheck.RunOptions.Timeout = 5 * time.Second
			}
			if p.HealthCheck.RunOptions.InitialDelay == 0 {
				p.HealthCheck.RunOptions.InitialDelay = 10 * time.Second
			}
			p.HealthCheck.RunOptions.Enabled = true
		}
	}
}

// Program returns the configuration of the named program.
func (c *Config) Program(name string) (*ProgramConfig, bool) {
	for i := range c.Programs {
		if c.Programs[i].Name == name {
			return &c.Programs[i], true
		}
	}
	return nil, false
}
