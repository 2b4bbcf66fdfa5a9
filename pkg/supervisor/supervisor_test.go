//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
	"github.com/tradex-ops/tradexd/pkg/pidfile"
	"github.com/tradex-ops/tradexd/pkg/supervisor/programstate"
)

func testProgram(t *testing.T, name, command string, args ...string) config.ProgramConfig {
	t.Helper()
	logDir := t.TempDir()
	return config.ProgramConfig{
		Name:          name,
		Command:       command,
		Args:          args,
		Restart:       config.RestartNever,
		ExitCodes:     []int{0},
		StartSecs:     100 * time.Millisecond,
		StartRetries:  2,
		BackoffRate:   1.0,
		StopSignal:    "TERM",
		StopWait:      2 * time.Second,
		StdoutLogfile: filepath.Join(logDir, name+".out.log"),
		StderrLogfile: filepath.Join(logDir, name+".err.log"),
	}
}

func newTestController(t *testing.T, programConfig config.ProgramConfig) (*programController, *Journal) {
	t.Helper()
	journal := NewJournal(64)
	pidFiles := pidfile.NewManager(t.TempDir(), logging.NewNopLogger())
	controller := newProgramController(context.Background(), programConfig, pidFiles, journal, logging.NewNopLogger())
	t.Cleanup(func() {
		controller.Shutdown(context.Background())
	})
	return controller, journal
}

func waitForState(t *testing.T, controller *programController, state programstate.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return controller.Status().State == state
	}, 10*time.Second, 20*time.Millisecond, "expected state %s, got %s", state, controller.Status().State)
}

func TestController_StartStop(t *testing.T) {
	controller, _ := newTestController(t, testProgram(t, "sleeper", "/bin/sleep", "30"))

	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateRunning)

	info := controller.Status()
	assert.Greater(t, info.PID, 0)
	assert.False(t, info.StartedAt.IsZero())

	require.NoError(t, controller.Stop(context.Background()))
	waitForState(t, controller, programstate.StateStopped)
	assert.Zero(t, controller.Status().PID)
}

func TestController_StartWhileRunningIsRejected(t *testing.T) {
	controller, _ := newTestController(t, testProgram(t, "sleeper", "/bin/sleep", "30"))

	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateRunning)

	err := controller.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestController_ManualStopDisablesRestart(t *testing.T) {
	programConfig := testProgram(t, "sleeper", "/bin/sleep", "30")
	programConfig.Restart = config.RestartAlways
	controller, _ := newTestController(t, programConfig)

	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateRunning)

	require.NoError(t, controller.Stop(context.Background()))
	waitForState(t, controller, programstate.StateStopped)

	// A manually stopped program must stay down despite restart: always.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, programstate.StateStopped, controller.Status().State)
}

func TestController_FailingStartGoesFatal(t *testing.T) {
	programConfig := testProgram(t, "crasher", "/bin/false")
	programConfig.StartSecs = 500 * time.Millisecond
	controller, journal := newTestController(t, programConfig)

	err := controller.Start(context.Background())
	// The first exec succeeds; the failure surfaces via early exit.
	require.NoError(t, err)

	waitForState(t, controller, programstate.StateFatal)
	assert.Equal(t, 3, controller.Status().Retries)

	events := journal.List(0, "crasher")
	var backoffs int
	for _, event := range events {
		if event.Type == EventBackoff {
			backoffs++
		}
	}
	assert.Equal(t, 3, backoffs)
}

func TestController_MissingCommandGoesFatal(t *testing.T) {
	programConfig := testProgram(t, "ghost", "/no/such/binary")
	programConfig.StartRetries = 1
	controller, _ := newTestController(t, programConfig)

	err := controller.Start(context.Background())
	require.Error(t, err)

	waitForState(t, controller, programstate.StateFatal)
}

func TestController_RestartAfterFatal(t *testing.T) {
	programConfig := testProgram(t, "flaky", "/no/such/binary")
	programConfig.StartRetries = 0
	controller, _ := newTestController(t, programConfig)

	require.Error(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateFatal)

	// A manual start after FATAL gets a fresh retry budget.
	controller.programConfig.Command = "/bin/sleep"
	controller.programConfig.Args = []string{"30"}
	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateRunning)
}

func TestController_AutoRestartOnFailure(t *testing.T) {
	programConfig := testProgram(t, "dier", "/bin/sh", "-c", "sleep 0.3; exit 1")
	programConfig.Restart = config.RestartOnFailure
	programConfig.StartSecs = 50 * time.Millisecond
	controller, journal := newTestController(t, programConfig)

	require.NoError(t, controller.Start(context.Background()))

	// The program reaches RUNNING, exits 1, and is started again.
	require.Eventually(t, func() bool {
		var starts int
		for _, event := range journal.List(0, "dier") {
			if event.Type == EventStarting {
				starts++
			}
		}
		return starts >= 2
	}, 10*time.Second, 20*time.Millisecond)
}

func TestController_ExpectedExitNoRestart(t *testing.T) {
	programConfig := testProgram(t, "oneshot", "/bin/sh", "-c", "sleep 0.3; exit 0")
	programConfig.Restart = config.RestartOnFailure
	programConfig.StartSecs = 50 * time.Millisecond
	controller, _ := newTestController(t, programConfig)

	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateExited)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, programstate.StateExited, controller.Status().State)
	assert.Equal(t, 0, controller.Status().ExitCode)
}

func TestController_StopDuringBackoffCancelsRetry(t *testing.T) {
	programConfig := testProgram(t, "crasher", "/bin/false")
	programConfig.StartSecs = time.Second
	programConfig.StartRetries = 5
	controller, _ := newTestController(t, programConfig)

	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateBackoff)

	require.NoError(t, controller.Stop(context.Background()))
	assert.Equal(t, programstate.StateStopped, controller.Status().State)

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, programstate.StateStopped, controller.Status().State)
}

func TestController_BaseContextCancelDeliversStopSignal(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "graceful")
	programConfig := testProgram(t, "trapper", "/bin/sh", "-c",
		fmt.Sprintf("trap 'echo bye > %s; exit 0' TERM; sleep 30 & wait", marker))

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journal := NewJournal(64)
	pidFiles := pidfile.NewManager(t.TempDir(), logging.NewNopLogger())
	controller := newProgramController(baseCtx, programConfig, pidFiles, journal, logging.NewNopLogger())

	require.NoError(t, controller.Start(context.Background()))
	waitForState(t, controller, programstate.StateRunning)

	// Cancelling the base context must reach the child as its stop signal
	// so the trap runs, not as an immediate kill.
	cancel()

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond, "child never saw the stop signal")
	waitForState(t, controller, programstate.StateExited)
	assert.Equal(t, 0, controller.Status().ExitCode)
}

func TestJournal(t *testing.T) {
	journal := NewJournal(3)
	journal.Record("a", EventStarting, "one")
	journal.Record("b", EventStarting, "two")
	journal.Record("a", EventRunning, "three")
	journal.Record("a", EventExited, "four")

	all := journal.List(0, "")
	require.Len(t, all, 3)
	assert.Equal(t, "two", all[0].Message)
	assert.Equal(t, "four", all[2].Message)
	for _, event := range all {
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Time.IsZero())
	}

	filtered := journal.List(0, "a")
	require.Len(t, filtered, 2)

	limited := journal.List(1, "")
	require.Len(t, limited, 1)
	assert.Equal(t, "four", limited[0].Message)
}

func testConfig(t *testing.T, programs ...config.ProgramConfig) *config.Config {
	t.Helper()
	return &config.Config{
		Supervisor: config.SupervisorOptions{
			ControlAddr:          config.DefaultControlAddr,
			LogDirectory:         t.TempDir(),
			PIDDirectory:         t.TempDir(),
			ForceShutdownTimeout: 5 * time.Second,
		},
		Programs: programs,
	}
}

func TestSupervisor_StartAllAndStatus(t *testing.T) {
	autostartOff := false
	sleeper := testProgram(t, "sleeper", "/bin/sleep", "30")
	lazy := testProgram(t, "lazy", "/bin/sleep", "30")
	lazy.Autostart = &autostartOff

	sup := NewSupervisor(context.Background(), testConfig(t, sleeper, lazy), logging.NewNopLogger())
	t.Cleanup(func() { sup.StopAll(context.Background()) })

	require.NoError(t, sup.StartAll(context.Background()))

	require.Eventually(t, func() bool {
		info, err := sup.Status("sleeper")
		return err == nil && info.State == programstate.StateRunning
	}, 10*time.Second, 20*time.Millisecond)

	info, err := sup.Status("lazy")
	require.NoError(t, err)
	assert.Equal(t, programstate.StateStopped, info.State)

	all := sup.StatusAll()
	assert.Len(t, all, 2)

	_, err = sup.Status("unknown")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSupervisor_TailLog(t *testing.T) {
	echoer := testProgram(t, "echoer", "/bin/sh", "-c", "echo hello; sleep 30")
	sup := NewSupervisor(context.Background(), testConfig(t, echoer), logging.NewNopLogger())
	t.Cleanup(func() { sup.StopAll(context.Background()) })

	require.NoError(t, sup.Start(context.Background(), "echoer"))

	require.Eventually(t, func() bool {
		lines, err := sup.TailLog("echoer", "stdout", 10)
		return err == nil && len(lines) == 1 && lines[0] == "hello"
	}, 10*time.Second, 50*time.Millisecond)

	_, err := sup.TailLog("echoer", "bogus", 10)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestSupervisor_ApplyConfig(t *testing.T) {
	sleeper := testProgram(t, "sleeper", "/bin/sleep", "30")
	sup := NewSupervisor(context.Background(), testConfig(t, sleeper), logging.NewNopLogger())
	t.Cleanup(func() { sup.StopAll(context.Background()) })

	require.NoError(t, sup.StartAll(context.Background()))
	require.Eventually(t, func() bool {
		info, _ := sup.Status("sleeper")
		return info.State == programstate.StateRunning
	}, 10*time.Second, 20*time.Millisecond)

	extra := testProgram(t, "extra", "/bin/sleep", "30")
	newConfig := testConfig(t, sleeper, extra)
	newConfig.Supervisor = sup.Config().Supervisor

	diff, err := sup.ApplyConfig(context.Background(), newConfig)
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, diff.Added)

	require.Eventually(t, func() bool {
		info, err := sup.Status("extra")
		return err == nil && info.State == programstate.StateRunning
	}, 10*time.Second, 20*time.Millisecond)

	// Remove it again.
	shrunk := testConfig(t, sleeper)
	shrunk.Supervisor = sup.Config().Supervisor
	diff, err = sup.ApplyConfig(context.Background(), shrunk)
	require.NoError(t, err)
	assert.Contains(t, diff.Removed, "extra")

	_, statusErr := sup.Status("extra")
	require.Error(t, statusErr)
}

func TestSupervisor_ConcurrentReloads(t *testing.T) {
	sleeper := testProgram(t, "sleeper", "/bin/sleep", "30")
	sup := NewSupervisor(context.Background(), testConfig(t, sleeper), logging.NewNopLogger())
	t.Cleanup(func() { sup.StopAll(context.Background()) })

	extra := testProgram(t, "extra", "/bin/sleep", "30")
	newConfig := testConfig(t, sleeper, extra)
	newConfig.Supervisor = sup.Config().Supervisor

	// Two racing reloads of the same configuration: exactly one applies
	// the change, the other sees it already in effect.
	diffs := make(chan config.Diff, 2)
	for i := 0; i < 2; i++ {
		go func() {
			diff, err := sup.ApplyConfig(context.Background(), newConfig)
			assert.NoError(t, err)
			diffs <- diff
		}()
	}

	var applied int
	for i := 0; i < 2; i++ {
		diff := <-diffs
		if !diff.Empty() {
			applied++
			assert.Equal(t, []string{"extra"}, diff.Added)
		}
	}
	assert.Equal(t, 1, applied)

	require.Eventually(t, func() bool {
		info, err := sup.Status("extra")
		return err == nil && info.State == programstate.StateRunning
	}, 10*time.Second, 20*time.Millisecond)
}

func TestSupervisor_RestartChangesPID(t *testing.T) {
	sleeper := testProgram(t, "sleeper", "/bin/sleep", "30")
	sup := NewSupervisor(context.Background(), testConfig(t, sleeper), logging.NewNopLogger())
	t.Cleanup(func() { sup.StopAll(context.Background()) })

	require.NoError(t, sup.Start(context.Background(), "sleeper"))
	require.Eventually(t, func() bool {
		info, _ := sup.Status("sleeper")
		return info.State == programstate.StateRunning
	}, 10*time.Second, 20*time.Millisecond)

	before, err := sup.Status("sleeper")
	require.NoError(t, err)

	require.NoError(t, sup.Restart(context.Background(), "sleeper"))
	require.Eventually(t, func() bool {
		info, _ := sup.Status("sleeper")
		return info.State == programstate.StateRunning && info.PID != before.PID
	}, 10*time.Second, 20*time.Millisecond, fmt.Sprintf("PID should change across restart (was %d)", before.PID))
}
