package supervisor

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
	"github.com/tradex-ops/tradexd/pkg/monitoring"
	"github.com/tradex-ops/tradexd/pkg/pidfile"
	"github.com/tradex-ops/tradexd/pkg/process"
	"github.com/tradex-ops/tradexd/pkg/proclog"
	"github.com/tradex-ops/tradexd/pkg/supervisor/programstate"
)

const (
	backoffBaseDelay = 1 * time.Second
	backoffMaxDelay  = 60 * time.Second
)

// programController drives the lifecycle of a single supervised program.
// All mutable state is guarded by mutex; timers and the wait goroutine
// carry the generation of the start attempt that created them, so firings
// that outlive their attempt are ignored.
type programController struct {
	programConfig config.ProgramConfig
	logger        logging.Logger
	pidFiles      *pidfile.Manager
	journal       *Journal

	// baseCtx spans the daemon lifetime; automatic restarts must not be
	// tied to the API request that happened to trigger the first start.
	baseCtx context.Context

	mutex      sync.Mutex
	state      programstate.State
	lastChange time.Time
	message    string
	retries    int
	exitCode   int
	pid        int
	startedAt  time.Time

	generation   int
	cmd          *exec.Cmd
	done         chan struct{}
	logFiles     *proclog.Files
	startTimer   *time.Timer
	backoffTimer *time.Timer

	healthMonitor monitoring.HealthMonitor
}

func newProgramController(baseCtx context.Context, programConfig config.ProgramConfig,
	pidFiles *pidfile.Manager, journal *Journal, logger logging.Logger) *programController {
	return &programController{
		programConfig: programConfig,
		logger:        logger,
		pidFiles:      pidFiles,
		journal:       journal,
		baseCtx:       baseCtx,
		state:         programstate.StateStopped,
		lastChange:    time.Now(),
	}
}

// Start begins the program, resetting the retry budget. Manual starts are
// rejected while the program is already active or waiting to retry.
func (c *programController) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return errors.NewCancelledError("start cancelled", ctx.Err()).WithContext("program", c.programConfig.Name)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.state.IsStartable() {
		return errors.NewConflictError("program cannot be started in its current state", nil).
			WithContext("program", c.programConfig.Name).WithContext("state", string(c.state))
	}

	c.retries = 0
	return c.startAttemptLocked()
}

// Stop terminates the program. A stopped program never auto-restarts;
// stopping a program in backoff cancels the pending retry.
func (c *programController) Stop(ctx context.Context) error {
	if ctx.Err() != nil {
		return errors.NewCancelledError("stop cancelled", ctx.Err()).WithContext("program", c.programConfig.Name)
	}

	c.mutex.Lock()

	if c.state == programstate.StateBackoff {
		if c.backoffTimer != nil {
			c.backoffTimer.Stop()
			c.backoffTimer = nil
		}
		c.setStateLocked(programstate.StateStopped, "stopped before retry")
		c.mutex.Unlock()
		return nil
	}

	if !c.state.IsStoppable() {
		state := c.state
		c.mutex.Unlock()
		return errors.NewConflictError("program cannot be stopped in its current state", nil).
			WithContext("program", c.programConfig.Name).WithContext("state", string(state))
	}

	c.setStateLocked(programstate.StateStopping, "stop requested")

	cmd := c.cmd
	done := c.done
	monitor := c.healthMonitor
	c.healthMonitor = nil
	stopSignal, err := process.SignalFromName(c.programConfig.StopSignal)
	c.mutex.Unlock()

	if err != nil {
		return errors.NewConfigError("invalid stop signal", err).WithContext("program", c.programConfig.Name)
	}

	if monitor != nil {
		monitor.Stop()
	}
	process.Terminate(cmd, done, stopSignal, c.programConfig.StopWait, c.programConfig.Name, c.logger)
	return nil
}

// Restart is a stop followed by a start.
func (c *programController) Restart(ctx context.Context) error {
	c.mutex.Lock()
	stoppable := c.state.IsStoppable()
	c.mutex.Unlock()

	if stoppable {
		if err := c.Stop(ctx); err != nil {
			return err
		}
	}
	return c.Start(ctx)
}

// Status returns a snapshot of the program's state.
func (c *programController) Status() programstate.Info {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return programstate.Info{
		State:      c.state,
		PID:        c.pid,
		StartedAt:  c.startedAt,
		ExitCode:   c.exitCode,
		Retries:    c.retries,
		LastChange: c.lastChange,
		Message:    c.message,
	}
}

// Shutdown stops the program as part of daemon shutdown, tolerating any
// state.
func (c *programController) Shutdown(ctx context.Context) {
	if err := c.Stop(ctx); err != nil && !errors.IsConflictError(err) {
		c.logger.Warnf("Failed to stop program during shutdown, program: %s, error: %v",
			c.programConfig.Name, err)
	}
}

// startAttemptLocked performs one start attempt. STARTING is entered
// before the exec attempt so a failed exec follows the same backoff path
// as an early exit.
func (c *programController) startAttemptLocked() error {
	c.generation++
	generation := c.generation

	c.setStateLocked(programstate.StateStarting, "spawning process")

	spec, logFiles, err := buildSpec(&c.programConfig)
	if err == nil {
		var cmd *exec.Cmd
		cmd, err = process.Start(c.baseCtx, spec, c.programConfig.Name, c.logger)
		if err != nil {
			logFiles.Close()
		} else {
			c.cmd = cmd
			c.logFiles = logFiles
			c.done = make(chan struct{})
			c.pid = cmd.Process.Pid
			c.startedAt = time.Now()
			c.message = fmt.Sprintf("PID %d", c.pid)

			if pidErr := c.pidFiles.Write(c.programConfig.Name, c.pid); pidErr != nil {
				c.logger.Warnf("Failed to write PID file, program: %s, error: %v",
					c.programConfig.Name, pidErr)
			}

			c.startTimer = time.AfterFunc(c.programConfig.StartSecs, func() {
				c.confirmRunning(generation)
			})
			go c.waitProcess(generation, cmd, c.done)
			return nil
		}
	}

	c.failStartLocked(err.Error())
	return err
}

// failStartLocked accounts a failed start attempt: backoff with an
// exponentially growing delay, FATAL once the retry budget is spent.
func (c *programController) failStartLocked(reason string) {
	c.retries++
	c.setStateLocked(programstate.StateBackoff, reason)

	if c.retries > c.programConfig.StartRetries {
		c.setStateLocked(programstate.StateFatal,
			fmt.Sprintf("gave up after %d failed start attempts: %s", c.retries, reason))
		return
	}

	delay := c.backoffDelayLocked()
	generation := c.generation
	c.logger.Warnf("Start attempt failed, program: %s, attempt: %d/%d, retrying in %v, reason: %s",
		c.programConfig.Name, c.retries, c.programConfig.StartRetries+1, delay, reason)
	c.backoffTimer = time.AfterFunc(delay, func() {
		c.retryAttempt(generation)
	})
}

func (c *programController) backoffDelayLocked() time.Duration {
	delay := time.Duration(float64(backoffBaseDelay) * math.Pow(c.programConfig.BackoffRate, float64(c.retries-1)))
	if delay > backoffMaxDelay {
		delay = backoffMaxDelay
	}
	return delay
}

func (c *programController) retryAttempt(generation int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if generation != c.generation || c.state != programstate.StateBackoff {
		return
	}
	if err := c.startAttemptLocked(); err != nil {
		c.logger.Debugf("Retry attempt failed, program: %s, error: %v", c.programConfig.Name, err)
	}
}

// confirmRunning fires when the process stayed up for the minimum uptime.
func (c *programController) confirmRunning(generation int) {
	c.mutex.Lock()

	if generation != c.generation || c.state != programstate.StateStarting {
		c.mutex.Unlock()
		return
	}

	c.retries = 0
	c.setStateLocked(programstate.StateRunning,
		fmt.Sprintf("up for %v, PID %d", c.programConfig.StartSecs, c.pid))

	var monitor monitoring.HealthMonitor
	if c.programConfig.HealthCheck.RunOptions.Enabled {
		monitor = monitoring.NewHealthMonitor(&c.programConfig.HealthCheck,
			c.programConfig.Name, c.pid, c.logger)
		monitor.SetUnhealthyCallback(func(reason string) {
			c.onUnhealthy(generation, reason)
		})
		monitor.SetRecoveryCallback(func() {
			c.journal.Record(c.programConfig.Name, EventRecovered, "health check recovered")
		})
		c.healthMonitor = monitor
	}
	c.mutex.Unlock()

	if monitor != nil {
		if err := monitor.Start(c.baseCtx); err != nil {
			c.logger.Errorf("Failed to start health monitor, program: %s, error: %v",
				c.programConfig.Name, err)
		}
	}
}

// onUnhealthy restarts a running program whose health check failed
// repeatedly. Programs with restart policy "never" are only reported.
func (c *programController) onUnhealthy(generation int, reason string) {
	c.mutex.Lock()
	stale := generation != c.generation || c.state != programstate.StateRunning
	c.mutex.Unlock()
	if stale {
		return
	}

	c.journal.Record(c.programConfig.Name, EventUnhealthy, reason)
	if c.programConfig.Restart == config.RestartNever {
		c.logger.Warnf("Program unhealthy, restart policy forbids restart, program: %s, reason: %s",
			c.programConfig.Name, reason)
		return
	}
	c.logger.Warnf("Program unhealthy, restarting, program: %s, reason: %s", c.programConfig.Name, reason)

	if err := c.Restart(c.baseCtx); err != nil {
		c.logger.Errorf("Failed to restart unhealthy program, program: %s, error: %v",
			c.programConfig.Name, err)
	}
}

// waitProcess reaps the child and applies exit handling. done is closed
// only after the exit has been fully processed, so Stop observes the final
// state.
func (c *programController) waitProcess(generation int, cmd *exec.Cmd, done chan struct{}) {
	waitErr := cmd.Wait()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	c.handleExit(generation, exitCode, waitErr)
	close(done)
}

func (c *programController) handleExit(generation int, exitCode int, waitErr error) {
	c.mutex.Lock()

	if generation != c.generation {
		c.mutex.Unlock()
		return
	}

	monitor := c.healthMonitor
	c.healthMonitor = nil
	logFiles := c.logFiles
	c.logFiles = nil
	c.cmd = nil
	c.pid = 0
	c.exitCode = exitCode
	if c.startTimer != nil {
		c.startTimer.Stop()
		c.startTimer = nil
	}

	var restartErr error
	switch c.state {
	case programstate.StateStopping:
		c.setStateLocked(programstate.StateStopped, fmt.Sprintf("stopped, exit code: %d", exitCode))

	case programstate.StateStarting:
		c.failStartLocked(fmt.Sprintf("exited before minimum uptime of %v, exit code: %d",
			c.programConfig.StartSecs, exitCode))

	case programstate.StateRunning:
		c.setStateLocked(programstate.StateExited, fmt.Sprintf("exited, exit code: %d", exitCode))
		if c.shouldRestartLocked(exitCode) {
			c.logger.Infof("Restarting exited program, program: %s, policy: %s, exit code: %d",
				c.programConfig.Name, c.programConfig.Restart, exitCode)
			restartErr = c.startAttemptLocked()
		}

	default:
		c.logger.Errorf("Process exited in unexpected state, program: %s, state: %s, exit code: %d, wait error: %v",
			c.programConfig.Name, c.state, exitCode, waitErr)
	}
	c.mutex.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if logFiles != nil {
		logFiles.Close()
	}
	if err := c.pidFiles.Remove(c.programConfig.Name); err != nil {
		c.logger.Debugf("Failed to remove PID file, program: %s, error: %v", c.programConfig.Name, err)
	}
	if restartErr != nil {
		c.logger.Errorf("Automatic restart failed, program: %s, error: %v", c.programConfig.Name, restartErr)
	}
}

func (c *programController) shouldRestartLocked(exitCode int) bool {
	switch c.programConfig.Restart {
	case config.RestartAlways:
		return true
	case config.RestartOnFailure:
		return !c.programConfig.ExpectedExit(exitCode)
	default:
		return false
	}
}

// setStateLocked moves to a new state, journaling the change. Transition
// violations indicate a controller bug and are logged loudly.
func (c *programController) setStateLocked(to programstate.State, message string) {
	if err := programstate.ValidateTransition(c.state, to); err != nil {
		c.logger.Errorf("State transition rejected, program: %s, error: %v", c.programConfig.Name, err)
		return
	}

	c.logger.Infof("Program state changed, program: %s, state: %s->%s, message: %s",
		c.programConfig.Name, c.state, to, message)
	c.state = to
	c.lastChange = time.Now()
	c.message = message
	c.journal.Record(c.programConfig.Name, string(to), message)
}
