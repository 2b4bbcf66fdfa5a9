//go:build !windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
	"time"
)

// setupProcessAttributes puts the child in its own process group so that
// stop signals reach the whole process tree (gunicorn master plus workers),
// and applies User=/Group= credentials when configured.
func setupProcessAttributes(cmd *exec.Cmd, userName, groupName string) error {
	attr := &syscall.SysProcAttr{
		Setpgid: true,
	}

	if userName != "" || groupName != "" {
		credential, err := lookupCredential(userName, groupName)
		if err != nil {
			return err
		}
		attr.Credential = credential
	}

	cmd.SysProcAttr = attr
	return nil
}

// configureCancel replaces exec.CommandContext's kill-on-cancel default:
// cancelling the context delivers the configured stop signal to the whole
// process group, and WaitDelay bounds how long Wait tolerates a child that
// ignores it before the runtime force-kills.
func configureCancel(cmd *exec.Cmd, stopSignal syscall.Signal, stopWait time.Duration) {
	if stopSignal == 0 {
		stopSignal = syscall.SIGTERM
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		if err := SignalGroup(cmd.Process.Pid, stopSignal); err != nil {
			return os.ErrProcessDone
		}
		return nil
	}
	if stopWait > 0 {
		cmd.WaitDelay = stopWait
	}
}

func lookupCredential(userName, groupName string) (*syscall.Credential, error) {
	credential := &syscall.Credential{}

	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", userName, err)
		}
		uid, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("uid of user %q: %w", userName, err)
		}
		gid, err := strconv.ParseUint(u.Gid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("gid of user %q: %w", userName, err)
		}
		credential.Uid = uint32(uid)
		credential.Gid = uint32(gid)
	}

	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", groupName, err)
		}
		gid, err := strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("gid of group %q: %w", groupName, err)
		}
		credential.Gid = uint32(gid)
	}

	return credential, nil
}
