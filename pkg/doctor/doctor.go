// Package doctor runs environment diagnostics for a tradexd deployment:
// the checks an operator would perform by hand when a program refuses to
// start (missing binaries, unreadable env files, busy ports, absent
// users).
package doctor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"time"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/envfile"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Result is the outcome of one check.
type Result struct {
	Check    string   `json:"check"`
	Program  string   `json:"program,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report aggregates all check results.
type Report struct {
	Results []Result  `json:"results"`
	RunAt   time.Time `json:"run_at"`
}

// HasErrors reports whether any check failed hard.
func (r *Report) HasErrors() bool {
	for _, result := range r.Results {
		if result.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) add(check, program string, severity Severity, format string, args ...interface{}) {
	r.Results = append(r.Results, Result{
		Check:    check,
		Program:  program,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Run performs every check against the configuration. expectRunning
// selects the port interpretation: a running deployment should have its
// program ports occupied, a stopped one should have them free.
func Run(cfg *config.Config, expectRunning bool, logger logging.Logger) *Report {
	report := &Report{RunAt: time.Now()}

	checkDirectoryWritable(report, "log_directory", cfg.Supervisor.LogDirectory)
	checkDirectoryWritable(report, "pid_directory", cfg.Supervisor.PIDDirectory)

	for i := range cfg.Programs {
		p := &cfg.Programs[i]
		checkCommand(report, p)
		checkDirectory(report, p)
		checkEnvironmentFile(report, p)
		checkCredentials(report, p)
		checkPort(report, p, expectRunning)
	}

	errorCount := 0
	for _, result := range report.Results {
		if result.Severity == SeverityError {
			errorCount++
		}
	}
	logger.Infof("Diagnostics completed, checks: %d, errors: %d", len(report.Results), errorCount)
	return report
}

func checkCommand(report *Report, p *config.ProgramConfig) {
	path := p.Command
	if !filepath.IsAbs(path) {
		if filepath.Base(path) == path {
			resolved, err := exec.LookPath(path)
			if err != nil {
				report.add("command", p.Name, SeverityError, "command %q not found in PATH", path)
				return
			}
			path = resolved
		} else {
			path = filepath.Join(p.Directory, path)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		report.add("command", p.Name, SeverityError, "command not found: %s", path)
		return
	}
	if info.Mode()&0o111 == 0 {
		report.add("command", p.Name, SeverityError, "command is not executable: %s (chmod +x?)", path)
		return
	}
	report.add("command", p.Name, SeverityOK, "command found: %s", path)
}

func checkDirectory(report *Report, p *config.ProgramConfig) {
	if p.Directory == "" {
		return
	}
	info, err := os.Stat(p.Directory)
	if err != nil {
		report.add("directory", p.Name, SeverityError, "working directory missing: %s", p.Directory)
		return
	}
	if !info.IsDir() {
		report.add("directory", p.Name, SeverityError, "working directory is not a directory: %s", p.Directory)
		return
	}
	report.add("directory", p.Name, SeverityOK, "working directory exists: %s", p.Directory)
}

func checkEnvironmentFile(report *Report, p *config.ProgramConfig) {
	if p.EnvironmentFile == "" {
		return
	}
	vars, err := envfile.Load(p.EnvironmentFile)
	if err != nil {
		report.add("environment_file", p.Name, SeverityError, "environment file problem: %v", err)
		return
	}
	report.add("environment_file", p.Name, SeverityOK,
		"environment file readable: %s (%d variables)", p.EnvironmentFile, len(vars))
}

func checkCredentials(report *Report, p *config.ProgramConfig) {
	if p.User != "" {
		if _, err := user.Lookup(p.User); err != nil {
			report.add("user", p.Name, SeverityError, "user does not exist: %s", p.User)
		} else {
			report.add("user", p.Name, SeverityOK, "user exists: %s", p.User)
		}
	}
	if p.Group != "" {
		if _, err := user.LookupGroup(p.Group); err != nil {
			report.add("group", p.Name, SeverityError, "group does not exist: %s", p.Group)
		} else {
			report.add("group", p.Name, SeverityOK, "group exists: %s", p.Group)
		}
	}
}

func checkPort(report *Report, p *config.ProgramConfig, expectRunning bool) {
	if p.Port == 0 {
		return
	}

	addr := net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", p.Port))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	occupied := err == nil
	if conn != nil {
		conn.Close()
	}

	switch {
	case expectRunning && occupied:
		report.add("port", p.Name, SeverityOK, "port %d is accepting connections", p.Port)
	case expectRunning && !occupied:
		report.add("port", p.Name, SeverityError,
			"port %d is not accepting connections (program down or still starting)", p.Port)
	case !expectRunning && occupied:
		report.add("port", p.Name, SeverityWarning,
			"port %d is already in use; the program will fail to bind", p.Port)
	default:
		report.add("port", p.Name, SeverityOK, "port %d is free", p.Port)
	}
}

// checkDirectoryWritable is a read-only diagnosis: it never creates the
// directory. A missing directory is judged by whether the supervisor will
// be able to create it under the nearest existing ancestor.
func checkDirectoryWritable(report *Report, check, dir string) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			report.add(check, "", SeverityError, "not a directory: %s", dir)
			return
		}
		if !probeWritable(dir) {
			report.add(check, "", SeverityError, "directory not writable: %s", dir)
			return
		}
		report.add(check, "", SeverityOK, "directory writable: %s", dir)
		return
	}
	if !os.IsNotExist(err) {
		report.add(check, "", SeverityError, "cannot access directory %s: %v", dir, err)
		return
	}

	ancestor := nearestExistingDir(dir)
	if ancestor == "" || !probeWritable(ancestor) {
		report.add(check, "", SeverityError,
			"directory %s does not exist and cannot be created (parent %s not writable)", dir, ancestor)
		return
	}
	report.add(check, "", SeverityOK, "directory %s will be created on start", dir)
}

func probeWritable(dir string) bool {
	probe, err := os.CreateTemp(dir, ".tradexd-doctor-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}

// nearestExistingDir walks up from dir to the first path component that
// exists and is a directory.
func nearestExistingDir(dir string) string {
	for current := dir; ; {
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		info, err := os.Stat(parent)
		if err == nil {
			if info.IsDir() {
				return parent
			}
			return ""
		}
		current = parent
	}
}
