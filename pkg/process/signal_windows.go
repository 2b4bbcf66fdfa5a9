//go:build windows

package process

import (
	"fmt"
	"syscall"
)

func SignalFromName(name string) (syscall.Signal, error) {
	return 0, fmt.Errorf("signal-based process control is not supported on windows")
}

func SignalGroup(pid int, sig syscall.Signal) error {
	return fmt.Errorf("signal-based process control is not supported on windows")
}

func KillGroup(pid int) error {
	return fmt.Errorf("signal-based process control is not supported on windows")
}
