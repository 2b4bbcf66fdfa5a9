// Package proclog manages per-program stdout/stderr log files under the
// supervisor log directory, the tradexd equivalent of Supervisor's
// stdout_logfile/stderr_logfile.
package proclog

import (
	"os"
	"path/filepath"

	"github.com/tradex-ops/tradexd/pkg/errors"
)

// Files holds the open stdout and stderr destinations of one program.
type Files struct {
	Stdout *os.File
	Stderr *os.File
}

// Open opens (or creates, append-mode) the two log files. Both paths must
// be set; config defaulting derives them from the log directory.
func Open(stdoutPath, stderrPath string) (*Files, error) {
	stdout, err := openLogFile(stdoutPath)
	if err != nil {
		return nil, err
	}

	stderr, err := openLogFile(stderrPath)
	if err != nil {
		stdout.Close()
		return nil, err
	}

	return &Files{Stdout: stdout, Stderr: stderr}, nil
}

func (f *Files) Close() {
	if f == nil {
		return
	}
	if f.Stdout != nil {
		f.Stdout.Close()
	}
	if f.Stderr != nil {
		f.Stderr.Close()
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewIOError("failed to create log directory", err).WithContext("path", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.NewIOError("failed to open log file", err).WithContext("path", path)
	}
	return file, nil
}
