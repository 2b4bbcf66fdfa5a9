//go:build !windows

package process

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning reports whether a process with the given PID exists. It uses
// signal 0, which performs permission and existence checks without
// delivering anything.
func IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		// On Unix FindProcess always succeeds, but keep the check.
		return false, nil
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == syscall.EPERM {
		// The process exists but belongs to another user.
		return true, nil
	}
	return false, nil
}
