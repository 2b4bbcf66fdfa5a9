package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradex-ops/tradexd/pkg/config"
)

func webhookProgram() config.ProgramConfig {
	return config.ProgramConfig{
		Name:            "webhook_app",
		Command:         "/opt/tradex/venv/bin/gunicorn",
		Args:            []string{"--bind", "0.0.0.0:5005", "tradex.webhook_receiver:app"},
		Directory:       "/opt/tradex",
		EnvironmentFile: "-/opt/tradex/.env",
		Environment:     map[string]string{"MODE": "webhook"},
		User:            "tradex",
		Restart:         config.RestartAlways,
		StartSecs:       3 * time.Second,
		StartRetries:    3,
		StopSignal:      "TERM",
		StopWait:        10 * time.Second,
		StdoutLogfile:   "/var/log/tradex/webhook_app.out.log",
		StderrLogfile:   "/var/log/tradex/webhook_app.err.log",
	}
}

func TestSystemdUnit(t *testing.T) {
	p := webhookProgram()
	unit, err := SystemdUnit(&p)
	require.NoError(t, err)

	assert.Contains(t, unit, "Description=TradeX webhook_app")
	assert.Contains(t, unit, "User=tradex")
	assert.Contains(t, unit, "WorkingDirectory=/opt/tradex")
	assert.Contains(t, unit, "EnvironmentFile=-/opt/tradex/.env")
	assert.Contains(t, unit, `Environment="MODE=webhook"`)
	assert.Contains(t, unit, "ExecStart=/opt/tradex/venv/bin/gunicorn --bind 0.0.0.0:5005 tradex.webhook_receiver:app")
	assert.Contains(t, unit, "Restart=always")
	assert.Contains(t, unit, "KillSignal=SIGTERM")
	assert.Contains(t, unit, "TimeoutStopSec=10")
	assert.Contains(t, unit, "StandardOutput=append:/var/log/tradex/webhook_app.out.log")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
}

func TestSystemdUnit_MinimalProgram(t *testing.T) {
	p := config.ProgramConfig{
		Name:          "email_reader",
		Command:       "/usr/bin/python3",
		Args:          []string{"-m", "tradex.email_reader"},
		Restart:       config.RestartOnFailure,
		StopSignal:    "SIGTERM",
		StopWait:      10 * time.Second,
		StdoutLogfile: "/var/log/tradex/email_reader.out.log",
		StderrLogfile: "/var/log/tradex/email_reader.err.log",
	}

	unit, err := SystemdUnit(&p)
	require.NoError(t, err)

	assert.NotContains(t, unit, "User=")
	assert.NotContains(t, unit, "WorkingDirectory=")
	assert.NotContains(t, unit, "EnvironmentFile=")
	assert.Contains(t, unit, "Restart=on-failure")
	assert.Contains(t, unit, "KillSignal=SIGTERM")
	assert.NotContains(t, unit, "SIGSIGTERM")
}

func TestUnitFileName(t *testing.T) {
	assert.Equal(t, "webhook_app.service", UnitFileName("webhook_app"))
}

func TestSupervisorConf(t *testing.T) {
	p := webhookProgram()
	never := config.ProgramConfig{
		Name:          "oneshot",
		Command:       "/bin/true",
		Restart:       config.RestartNever,
		StartSecs:     time.Second,
		StartRetries:  3,
		StopSignal:    "TERM",
		StopWait:      10 * time.Second,
		StdoutLogfile: "/var/log/tradex/oneshot.out.log",
		StderrLogfile: "/var/log/tradex/oneshot.err.log",
	}
	cfg := &config.Config{Programs: []config.ProgramConfig{p, never}}

	conf, err := SupervisorConf(cfg)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(conf, "[program:webhook_app]"))
	assert.Contains(t, conf, "command=/opt/tradex/venv/bin/gunicorn --bind 0.0.0.0:5005 tradex.webhook_receiver:app")
	assert.Contains(t, conf, "directory=/opt/tradex")
	assert.Contains(t, conf, "user=tradex")
	assert.Contains(t, conf, `environment=MODE="webhook"`)
	assert.Contains(t, conf, "autorestart=true")
	assert.Contains(t, conf, "startsecs=3")
	assert.Contains(t, conf, "stopwaitsecs=10")

	assert.Contains(t, conf, "[program:oneshot]")
	assert.Contains(t, conf, "autorestart=false")
}
