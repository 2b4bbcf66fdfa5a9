//go:build !windows

package process

import (
	"fmt"
	"syscall"
)

// SignalFromName maps a configured stop signal name (with or without the
// SIG prefix) to the signal value.
func SignalFromName(name string) (syscall.Signal, error) {
	switch name {
	case "TERM", "SIGTERM", "":
		return syscall.SIGTERM, nil
	case "INT", "SIGINT":
		return syscall.SIGINT, nil
	case "QUIT", "SIGQUIT":
		return syscall.SIGQUIT, nil
	case "HUP", "SIGHUP":
		return syscall.SIGHUP, nil
	case "USR1", "SIGUSR1":
		return syscall.SIGUSR1, nil
	case "USR2", "SIGUSR2":
		return syscall.SIGUSR2, nil
	case "KILL", "SIGKILL":
		return syscall.SIGKILL, nil
	default:
		return 0, fmt.Errorf("unsupported stop signal: %s", name)
	}
}

// SignalGroup sends sig to the process group led by pid. The child is
// started with Setpgid, so the negative pid addresses the whole tree.
func SignalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	return syscall.Kill(-pid, sig)
}

// KillGroup force-kills the process group led by pid.
func KillGroup(pid int) error {
	return SignalGroup(pid, syscall.SIGKILL)
}
