// Package pidfile records supervised process PIDs on disk so operators and
// init scripts can find them, mirroring Supervisor's pidfile handling.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

// Manager writes, reads and removes PID files inside a base directory,
// normally /run/tradex.
type Manager struct {
	baseDir string
	logger  logging.Logger
}

func NewManager(baseDir string, logger logging.Logger) *Manager {
	return &Manager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Path returns the PID file path for a program.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.baseDir, name+".pid")
}

// Write creates the base directory if needed and records the PID.
func (m *Manager) Write(name string, pid int) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return errors.NewIOError("failed to create PID directory", err).WithContext("dir", m.baseDir)
	}

	path := m.Path(name)
	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("path", path)
	}

	m.logger.Debugf("PID file written, program: %s, PID: %d, path: %s", name, pid, path)
	return nil
}

// Read returns the recorded PID. A missing file is a not-found error.
func (m *Manager) Read(name string) (int, error) {
	path := m.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("path", path)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("path", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("PID file contains invalid PID", err).WithContext("path", path)
	}
	return pid, nil
}

// Remove deletes the PID file. Removing a missing file is not an error.
func (m *Manager) Remove(name string) error {
	path := m.Path(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("path", path)
	}
	m.logger.Debugf("PID file removed, program: %s, path: %s", name, path)
	return nil
}
