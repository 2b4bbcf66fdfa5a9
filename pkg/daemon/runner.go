// Package daemon boots and runs the tradexd process: configuration
// loading, preflight diagnostics, the supervisor fleet, the control
// server and the optional configuration watcher, torn down together on
// shutdown.
package daemon

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/control"
	"github.com/tradex-ops/tradexd/pkg/doctor"
	"github.com/tradex-ops/tradexd/pkg/logging"
	"github.com/tradex-ops/tradexd/pkg/supervisor"
)

// Options selects daemon behavior beyond the configuration file.
type Options struct {
	ConfigPath string
	// WatchConfig reloads the configuration automatically when the file
	// changes.
	WatchConfig bool
	// SkipPreflight disables the startup diagnostics pass.
	SkipPreflight bool
}

// Run executes the daemon until ctx is cancelled. zapLogger feeds the
// control server middleware; logger is the daemon-wide facade.
func Run(ctx context.Context, options Options, zapLogger *zap.Logger, logger logging.Logger) error {
	cfg, err := config.LoadFromFile(options.ConfigPath, logger)
	if err != nil {
		return err
	}

	if !options.SkipPreflight {
		report := doctor.Run(cfg, false, logger)
		for _, result := range report.Results {
			switch result.Severity {
			case doctor.SeverityError:
				logger.Errorf("Preflight: %s [%s]: %s", result.Check, result.Program, result.Message)
			case doctor.SeverityWarning:
				logger.Warnf("Preflight: %s [%s]: %s", result.Check, result.Program, result.Message)
			}
		}
		// Startup continues even with preflight errors; the per-program
		// backoff machinery surfaces real failures.
	}

	// The fleet must outlive the signal context: cancelling ctx stops the
	// control server and the watcher, while StopAll below delivers the
	// configured stop signal and escalates per program.
	sup := supervisor.NewSupervisor(context.WithoutCancel(ctx), cfg, logger)
	backend := &supervisorBackend{
		Supervisor: sup,
		configPath: options.ConfigPath,
		logger:     logger,
	}
	server := control.NewServer(cfg.Supervisor.ControlAddr, backend, zapLogger, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Run(groupCtx)
	})

	group.Go(func() error {
		if err := sup.StartAll(groupCtx); err != nil {
			logger.Errorf("Some programs failed to start: %v", err)
		}
		return nil
	})

	if options.WatchConfig {
		group.Go(func() error {
			return config.Watch(groupCtx, options.ConfigPath, logger, func() {
				if _, err := backend.Reload(context.Background()); err != nil {
					logger.Errorf("Automatic configuration reload failed: %v", err)
				}
			})
		})
	}

	runErr := group.Wait()

	logger.Infof("Shutting down, stopping all programs")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Supervisor.ForceShutdownTimeout)
	defer cancel()
	sup.StopAll(shutdownCtx)
	logger.Infof("Shutdown complete")

	return runErr
}

// supervisorBackend adapts the supervisor to the control API, adding the
// reload operation which needs the configuration path.
type supervisorBackend struct {
	*supervisor.Supervisor
	configPath string
	logger     logging.Logger
}

func (b *supervisorBackend) Reload(ctx context.Context) (config.Diff, error) {
	newConfig, err := config.LoadFromFile(b.configPath, b.logger)
	if err != nil {
		return config.Diff{}, err
	}
	return b.Supervisor.ApplyConfig(ctx, newConfig)
}
