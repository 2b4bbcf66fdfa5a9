//go:build !windows

package process

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/tradex-ops/tradexd/pkg/logging"
)

// Terminate stops the process group of cmd gracefully: the configured stop
// signal first, SIGKILL after stopWait expires. done must receive when
// cmd.Wait returns; the caller keeps ownership of Wait.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, stopSignal syscall.Signal, stopWait time.Duration, name string, logger logging.Logger) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	logger.Infof("Sending %v to process group, program: %s, PID: %d", stopSignal, name, pid)
	if err := SignalGroup(pid, stopSignal); err != nil {
		// Group may be gone already; fall back to the process itself.
		logger.Debugf("Signal to process group failed, program: %s, PID: %d, error: %v", name, pid, err)
		if err := cmd.Process.Signal(stopSignal); err != nil {
			logger.Debugf("Signal to process failed, program: %s, PID: %d, error: %v", name, pid, err)
		}
	}

	select {
	case <-done:
		logger.Infof("Process terminated gracefully, program: %s, PID: %d", name, pid)
		return
	case <-time.After(stopWait):
	}

	logger.Warnf("Process did not exit within %v, sending SIGKILL, program: %s, PID: %d", stopWait, name, pid)
	if err := KillGroup(pid); err != nil {
		logger.Debugf("SIGKILL to process group failed, program: %s, PID: %d, error: %v", name, pid, err)
		_ = cmd.Process.Kill()
	}

	// SIGKILL cannot be ignored, but give the kernel a moment to reap.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Errorf("Process still not reaped after SIGKILL, program: %s, PID: %d", name, pid)
	}
}
