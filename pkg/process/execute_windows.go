//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// Windows has no process groups or setuid semantics compatible with the
// Supervisor/systemd model tradexd implements; deployments are Linux-only.
func setupProcessAttributes(cmd *exec.Cmd, userName, groupName string) error {
	if userName != "" || groupName != "" {
		return fmt.Errorf("user/group switching is not supported on windows")
	}
	return nil
}

// configureCancel keeps exec.CommandContext's kill-on-cancel default.
func configureCancel(cmd *exec.Cmd, stopSignal syscall.Signal, stopWait time.Duration) {
	if stopWait > 0 {
		cmd.WaitDelay = stopWait
	}
}
