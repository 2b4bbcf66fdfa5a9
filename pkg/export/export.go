// Package export renders the tradexd configuration as native init
// fragments: one systemd unit per program, or a single Supervisor
// configuration, so deployments can hand programs over to the system
// process manager.
package export

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/errors"
)

const systemdUnitTemplate = `[Unit]
Description={{ .Description }}
After=network.target

[Service]
Type=simple
{{- if .User }}
User={{ .User }}
{{- end }}
{{- if .Group }}
Group={{ .Group }}
{{- end }}
{{- if .Directory }}
WorkingDirectory={{ .Directory }}
{{- end }}
{{- if .EnvironmentFile }}
EnvironmentFile={{ .EnvironmentFile }}
{{- end }}
{{- range .Environment }}
Environment={{ . }}
{{- end }}
ExecStart={{ .ExecStart }}
Restart={{ .Restart }}
RestartSec=5
KillSignal=SIG{{ .StopSignal }}
TimeoutStopSec={{ .StopWaitSeconds }}
StandardOutput=append:{{ .StdoutLogfile }}
StandardError=append:{{ .StderrLogfile }}

[Install]
WantedBy=multi-user.target
`

const supervisorConfTemplate = `{{- range .Programs }}
[program:{{ .Name }}]
command={{ .ExecStart }}
{{- if .Directory }}
directory={{ .Directory }}
{{- end }}
{{- if .User }}
user={{ .User }}
{{- end }}
{{- if .EnvironmentLine }}
environment={{ .EnvironmentLine }}
{{- end }}
autostart={{ .Autostart }}
autorestart={{ .Autorestart }}
startsecs={{ .StartSecsSeconds }}
startretries={{ .StartRetries }}
stopsignal={{ .StopSignal }}
stopwaitsecs={{ .StopWaitSeconds }}
stdout_logfile={{ .StdoutLogfile }}
stderr_logfile={{ .StderrLogfile }}
{{ end -}}
`

type systemdUnitData struct {
	Description     string
	User            string
	Group           string
	Directory       string
	EnvironmentFile string
	Environment     []string
	ExecStart       string
	Restart         string
	StopSignal      string
	StopWaitSeconds int
	StdoutLogfile   string
	StderrLogfile   string
}

type supervisorProgramData struct {
	Name             string
	ExecStart        string
	Directory        string
	User             string
	EnvironmentLine  string
	Autostart        bool
	Autorestart      string
	StartSecsSeconds int
	StartRetries     int
	StopSignal       string
	StopWaitSeconds  int
	StdoutLogfile    string
	StderrLogfile    string
}

// SystemdUnit renders a unit file for one program. The suggested file
// name is <name>.service.
func SystemdUnit(p *config.ProgramConfig) (string, error) {
	tmpl, err := template.New("unit").Parse(systemdUnitTemplate)
	if err != nil {
		return "", errors.NewInternalError("failed to parse systemd template", err)
	}

	data := systemdUnitData{
		Description:     fmt.Sprintf("TradeX %s", p.Name),
		User:            p.User,
		Group:           p.Group,
		Directory:       p.Directory,
		// systemd shares the leading-dash convention for optional files.
		EnvironmentFile: p.EnvironmentFile,
		Environment:     environmentPairs(p.Environment),
		ExecStart:       commandLine(p),
		Restart:         systemdRestart(p.Restart),
		StopSignal:      normalizeSignal(p.StopSignal),
		StopWaitSeconds: int(p.StopWait.Seconds()),
		StdoutLogfile:   p.StdoutLogfile,
		StderrLogfile:   p.StderrLogfile,
	}

	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", errors.NewInternalError("failed to render systemd unit", err)
	}
	return builder.String(), nil
}

// UnitFileName returns the unit file name for a program. Units are named
// after the program itself, so "systemctl start webhook_app" works as-is.
func UnitFileName(name string) string {
	return name + ".service"
}

// SupervisorConf renders a Supervisor configuration covering every
// program, suitable for /etc/supervisor/conf.d/tradex.conf.
func SupervisorConf(cfg *config.Config) (string, error) {
	tmpl, err := template.New("conf").Parse(supervisorConfTemplate)
	if err != nil {
		return "", errors.NewInternalError("failed to parse supervisor template", err)
	}

	programs := make([]supervisorProgramData, 0, len(cfg.Programs))
	for i := range cfg.Programs {
		p := &cfg.Programs[i]
		programs = append(programs, supervisorProgramData{
			Name:             p.Name,
			ExecStart:        commandLine(p),
			Directory:        p.Directory,
			User:             p.User,
			EnvironmentLine:  supervisorEnvironment(p.Environment),
			Autostart:        p.AutostartEnabled(),
			Autorestart:      supervisorRestart(p.Restart),
			StartSecsSeconds: int(p.StartSecs.Seconds()),
			StartRetries:     p.StartRetries,
			StopSignal:       normalizeSignal(p.StopSignal),
			StopWaitSeconds:  int(p.StopWait.Seconds()),
			StdoutLogfile:    p.StdoutLogfile,
			StderrLogfile:    p.StderrLogfile,
		})
	}

	var builder strings.Builder
	if err := tmpl.Execute(&builder, struct{ Programs []supervisorProgramData }{programs}); err != nil {
		return "", errors.NewInternalError("failed to render supervisor configuration", err)
	}
	return strings.TrimLeft(builder.String(), "\n"), nil
}

func commandLine(p *config.ProgramConfig) string {
	parts := append([]string{p.Command}, p.Args...)
	return strings.Join(parts, " ")
}

func environmentPairs(environment map[string]string) []string {
	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%q", key+"="+environment[key]))
	}
	return pairs
}

func supervisorEnvironment(environment map[string]string) string {
	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", key, environment[key]))
	}
	return strings.Join(pairs, ",")
}

func systemdRestart(policy config.RestartPolicy) string {
	switch policy {
	case config.RestartAlways:
		return "always"
	case config.RestartOnFailure:
		return "on-failure"
	default:
		return "no"
	}
}

func supervisorRestart(policy config.RestartPolicy) string {
	switch policy {
	case config.RestartAlways:
		return "true"
	case config.RestartOnFailure:
		return "unexpected"
	default:
		return "false"
	}
}

func normalizeSignal(signal string) string {
	return strings.TrimPrefix(signal, "SIG")
}
