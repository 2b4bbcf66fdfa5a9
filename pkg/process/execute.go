package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

// Spec describes how to launch one supervised child process.
type Spec struct {
	Command   string
	Args      []string
	Directory string
	// Environment is the complete child environment (already merged from the
	// parent environment, the environment file and per-program overrides).
	Environment []string
	// User and Group select credentials for the child. Empty means inherit.
	// Setting them requires the supervisor to run as root.
	User  string
	Group string

	// StopSignal and StopWait shape what a context cancellation does to the
	// child: the signal goes to the whole process group, and the kernel only
	// force-kills after StopWait. Zero values mean SIGTERM and no deadline.
	StopSignal syscall.Signal
	StopWait   time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

// Start launches the process described by spec in its own process group and
// returns the running command. The caller owns cmd.Wait.
func Start(ctx context.Context, spec Spec, name string, logger logging.Logger) (*exec.Cmd, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil).WithContext("program", name)
	}
	if err := ValidateSpec(spec); err != nil {
		return nil, errors.NewValidationError("invalid execution spec", err).WithContext("program", name)
	}

	commandPath, err := resolveCommand(spec.Command, spec.Directory)
	if err != nil {
		return nil, err
	}

	workDir := spec.Directory
	if workDir == "" {
		workDir = filepath.Dir(commandPath)
	}

	cmd := exec.CommandContext(ctx, commandPath, spec.Args...)
	cmd.Dir = workDir
	cmd.Env = spec.Environment
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if err := setupProcessAttributes(cmd, spec.User, spec.Group); err != nil {
		return nil, errors.NewPermissionError("failed to set process credentials", err).
			WithContext("program", name).WithContext("user", spec.User).WithContext("group", spec.Group)
	}
	configureCancel(cmd, spec.StopSignal, spec.StopWait)

	logger.Debugf("Starting process, program: %s, command: %s, args: %v, dir: %s",
		name, commandPath, spec.Args, workDir)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start process", err).
			WithContext("program", name).WithContext("command", commandPath)
	}

	logger.Infof("Process started, program: %s, PID: %d", name, cmd.Process.Pid)
	return cmd, nil
}

// resolveCommand locates the executable: absolute paths are used as-is,
// bare names are resolved via PATH, relative paths against the working
// directory.
func resolveCommand(command, dir string) (string, error) {
	if filepath.IsAbs(command) {
		if _, err := os.Stat(command); err != nil {
			return "", errors.NewIOError("command not found", err).WithContext("command", command)
		}
		return command, nil
	}

	if filepath.Base(command) == command {
		resolved, err := exec.LookPath(command)
		if err != nil {
			return "", errors.NewIOError("command not found in PATH", err).WithContext("command", command)
		}
		return resolved, nil
	}

	resolved := filepath.Join(dir, command)
	if _, err := os.Stat(resolved); err != nil {
		return "", errors.NewIOError("command not found", err).WithContext("command", resolved)
	}
	return resolved, nil
}
