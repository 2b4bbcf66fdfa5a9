//go:build windows

package process

import "fmt"

func IsRunning(pid int) (bool, error) {
	return false, fmt.Errorf("process liveness probe is not supported on windows")
}
