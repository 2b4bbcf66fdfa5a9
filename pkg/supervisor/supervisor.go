// Package supervisor manages the TradeX program fleet: it starts the
// configured programs, keeps them running according to their restart
// policies and answers control-plane queries.
package supervisor

import (
	"context"
	"sync"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
	"github.com/tradex-ops/tradexd/pkg/pidfile"
	"github.com/tradex-ops/tradexd/pkg/proclog"
	"github.com/tradex-ops/tradexd/pkg/supervisor/programstate"
)

type Supervisor struct {
	mutex       sync.Mutex
	cfg         *config.Config
	controllers map[string]*programController
	journal     *Journal
	pidFiles    *pidfile.Manager
	logger      logging.Logger
	baseCtx     context.Context

	// reloadMutex serializes ApplyConfig: the watcher and the control API
	// can both trigger reloads, and reconciliation spans many lock windows.
	reloadMutex sync.Mutex
}

// NewSupervisor builds the controller set from the configuration. baseCtx
// spans the daemon lifetime and parents every child process.
func NewSupervisor(baseCtx context.Context, cfg *config.Config, logger logging.Logger) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		controllers: make(map[string]*programController, len(cfg.Programs)),
		journal:     NewJournal(defaultJournalCapacity),
		pidFiles:    pidfile.NewManager(cfg.Supervisor.PIDDirectory, logger),
		logger:      logger,
		baseCtx:     baseCtx,
	}
	for i := range cfg.Programs {
		programConfig := cfg.Programs[i]
		s.controllers[programConfig.Name] = newProgramController(baseCtx, programConfig, s.pidFiles, s.journal, logger)
	}
	return s
}

// StartAll starts every autostart program. Individual failures are
// reported together; the remaining programs still start.
func (s *Supervisor) StartAll(ctx context.Context) error {
	collection := errors.NewErrorCollection()

	for _, name := range s.programNames() {
		controller, programConfig, err := s.getController(name)
		if err != nil {
			collection.Add(err)
			continue
		}
		if !programConfig.AutostartEnabled() {
			s.logger.Infof("Skipping program with autostart disabled, program: %s", name)
			continue
		}
		if err := controller.Start(ctx); err != nil {
			s.logger.Errorf("Failed to start program, program: %s, error: %v", name, err)
			collection.Add(err)
		}
	}
	return collection.ToError()
}

// StopAll stops every program, used during daemon shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range s.programNames() {
		controller, _, err := s.getController(name)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(controller *programController) {
			defer wg.Done()
			controller.Shutdown(ctx)
		}(controller)
	}
	wg.Wait()
}

func (s *Supervisor) Start(ctx context.Context, name string) error {
	controller, _, err := s.getController(name)
	if err != nil {
		return err
	}
	return controller.Start(ctx)
}

func (s *Supervisor) Stop(ctx context.Context, name string) error {
	controller, _, err := s.getController(name)
	if err != nil {
		return err
	}
	return controller.Stop(ctx)
}

func (s *Supervisor) Restart(ctx context.Context, name string) error {
	controller, _, err := s.getController(name)
	if err != nil {
		return err
	}
	return controller.Restart(ctx)
}

// Status returns the state snapshot of one program.
func (s *Supervisor) Status(name string) (programstate.Info, error) {
	controller, _, err := s.getController(name)
	if err != nil {
		return programstate.Info{}, err
	}
	return controller.Status(), nil
}

// StatusAll returns state snapshots for every program.
func (s *Supervisor) StatusAll() map[string]programstate.Info {
	result := make(map[string]programstate.Info)
	for _, name := range s.programNames() {
		controller, _, err := s.getController(name)
		if err != nil {
			continue
		}
		result[name] = controller.Status()
	}
	return result
}

// Events returns recent lifecycle events, newest last.
func (s *Supervisor) Events(limit int, program string) []Event {
	return s.journal.List(limit, program)
}

// TailLog returns the last n lines of a program's stdout or stderr log.
func (s *Supervisor) TailLog(name, stream string, n int) ([]string, error) {
	_, programConfig, err := s.getController(name)
	if err != nil {
		return nil, err
	}

	var path string
	switch stream {
	case "stdout", "":
		path = programConfig.StdoutLogfile
	case "stderr":
		path = programConfig.StderrLogfile
	default:
		return nil, errors.NewValidationError("unknown log stream", nil).
			WithContext("stream", stream).WithContext("program", name)
	}
	return proclog.TailFile(path, n)
}

// ApplyConfig reconciles the running fleet with a new configuration:
// removed programs are stopped, added programs are created (and started
// when autostart applies), changed programs are stopped and recreated.
// Supervisor-wide option changes require a daemon restart and only warn.
func (s *Supervisor) ApplyConfig(ctx context.Context, newConfig *config.Config) (config.Diff, error) {
	s.reloadMutex.Lock()
	defer s.reloadMutex.Unlock()

	s.mutex.Lock()
	oldConfig := s.cfg
	s.mutex.Unlock()

	diff := config.Compare(oldConfig, newConfig)
	if diff.Empty() {
		s.logger.Infof("Configuration unchanged, nothing to reload")
		return diff, nil
	}

	if diff.SupervisorChanged {
		s.logger.Warnf("Supervisor-wide options changed; a daemon restart is required to apply them")
	}

	collection := errors.NewErrorCollection()

	for _, name := range diff.Removed {
		s.logger.Infof("Removing program, program: %s", name)
		controller, _, err := s.getController(name)
		if err == nil {
			controller.Shutdown(ctx)
		}
		s.mutex.Lock()
		delete(s.controllers, name)
		s.mutex.Unlock()
	}

	for _, name := range diff.Changed {
		s.logger.Infof("Recreating changed program, program: %s", name)
		controller, _, err := s.getController(name)
		wasActive := false
		if err == nil {
			wasActive = controller.Status().State.IsActive()
			controller.Shutdown(ctx)
		}

		programConfig, _ := newConfig.Program(name)
		replacement := newProgramController(s.baseCtx, *programConfig, s.pidFiles, s.journal, s.logger)
		s.mutex.Lock()
		s.controllers[name] = replacement
		s.mutex.Unlock()

		if wasActive || programConfig.AutostartEnabled() {
			if err := replacement.Start(ctx); err != nil {
				collection.Add(err)
			}
		}
	}

	for _, name := range diff.Added {
		s.logger.Infof("Adding program, program: %s", name)
		programConfig, _ := newConfig.Program(name)
		controller := newProgramController(s.baseCtx, *programConfig, s.pidFiles, s.journal, s.logger)
		s.mutex.Lock()
		s.controllers[name] = controller
		s.mutex.Unlock()

		if programConfig.AutostartEnabled() {
			if err := controller.Start(ctx); err != nil {
				collection.Add(err)
			}
		}
	}

	s.mutex.Lock()
	s.cfg = newConfig
	s.mutex.Unlock()

	s.journal.Record("", EventReloaded, "configuration reloaded")
	return diff, collection.ToError()
}

// Config returns the active configuration.
func (s *Supervisor) Config() *config.Config {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.cfg
}

func (s *Supervisor) programNames() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	names := make([]string, 0, len(s.cfg.Programs))
	for i := range s.cfg.Programs {
		if _, exists := s.controllers[s.cfg.Programs[i].Name]; exists {
			names = append(names, s.cfg.Programs[i].Name)
		}
	}
	return names
}

func (s *Supervisor) getController(name string) (*programController, *config.ProgramConfig, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	controller, exists := s.controllers[name]
	if !exists {
		return nil, nil, errors.NewNotFoundError("program not found", nil).WithContext("program", name)
	}
	programConfig := controller.programConfig
	return controller, &programConfig, nil
}
