// Package control exposes the tradexd control plane: a loopback HTTP API
// in the spirit of supervisorctl's server port, plus a typed client used
// by tradexctl.
package control

import (
	"context"
	"time"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/supervisor"
	"github.com/tradex-ops/tradexd/pkg/supervisor/programstate"
)

// Backend is what the control server drives. The daemon runner implements
// it on top of the supervisor.
type Backend interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Status(name string) (programstate.Info, error)
	StatusAll() map[string]programstate.Info
	Events(limit int, program string) []supervisor.Event
	TailLog(name, stream string, n int) ([]string, error)
	Reload(ctx context.Context) (config.Diff, error)
}

// ProgramStatus is the wire form of one program's state.
type ProgramStatus struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PID        int       `json:"pid,omitempty"`
	Uptime     string    `json:"uptime,omitempty"`
	ExitCode   int       `json:"exit_code,omitempty"`
	Retries    int       `json:"retries,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	LastChange time.Time `json:"last_change"`
	Message    string    `json:"message,omitempty"`
}

func statusFromInfo(name string, info programstate.Info) ProgramStatus {
	status := ProgramStatus{
		Name:       name,
		State:      string(info.State),
		PID:        info.PID,
		ExitCode:   info.ExitCode,
		Retries:    info.Retries,
		StartedAt:  info.StartedAt,
		LastChange: info.LastChange,
		Message:    info.Message,
	}
	if uptime := info.Uptime(time.Now()); uptime > 0 {
		status.Uptime = uptime.Round(time.Second).String()
	}
	return status
}

// ReloadResult reports what a configuration reload changed.
type ReloadResult struct {
	Added             []string `json:"added,omitempty"`
	Removed           []string `json:"removed,omitempty"`
	Changed           []string `json:"changed,omitempty"`
	SupervisorChanged bool     `json:"supervisor_changed,omitempty"`
}

// LogLines carries a log tail response.
type LogLines struct {
	Program string   `json:"program"`
	Stream  string   `json:"stream"`
	Lines   []string `json:"lines"`
}

type errorResponse struct {
	Error string `json:"error"`
}
