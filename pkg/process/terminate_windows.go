//go:build windows

package process

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/tradex-ops/tradexd/pkg/logging"
)

func Terminate(cmd *exec.Cmd, done <-chan struct{}, stopSignal syscall.Signal, stopWait time.Duration, name string, logger logging.Logger) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	logger.Warnf("Graceful termination is not supported on windows, killing process, program: %s", name)
	_ = cmd.Process.Kill()

	select {
	case <-done:
	case <-time.After(stopWait):
		logger.Errorf("Process not reaped after kill, program: %s", name)
	}
}
