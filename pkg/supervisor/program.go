package supervisor

import (
	"os"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/envfile"
	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/process"
	"github.com/tradex-ops/tradexd/pkg/proclog"
)

// buildSpec assembles the execution spec for one start attempt: the child
// environment layered from the supervisor environment, the environment
// file and per-program overrides, plus freshly opened log files. The
// returned Files must be closed when the process exits.
func buildSpec(programConfig *config.ProgramConfig) (process.Spec, *proclog.Files, error) {
	var fileVars map[string]string
	if programConfig.EnvironmentFile != "" {
		vars, err := envfile.Load(programConfig.EnvironmentFile)
		if err != nil {
			return process.Spec{}, nil, errors.NewConfigError("failed to load environment file", err).
				WithContext("program", programConfig.Name)
		}
		fileVars = vars
	}

	environment := envfile.Merge(os.Environ(), fileVars, programConfig.Environment)

	stopSignal, err := process.SignalFromName(programConfig.StopSignal)
	if err != nil {
		return process.Spec{}, nil, errors.NewConfigError("invalid stop signal", err).
			WithContext("program", programConfig.Name)
	}

	logFiles, err := proclog.Open(programConfig.StdoutLogfile, programConfig.StderrLogfile)
	if err != nil {
		return process.Spec{}, nil, err
	}

	spec := process.Spec{
		Command:     programConfig.Command,
		Args:        programConfig.Args,
		Directory:   programConfig.Directory,
		Environment: environment,
		User:        programConfig.User,
		Group:       programConfig.Group,
		StopSignal:  stopSignal,
		StopWait:    programConfig.StopWait,
		Stdout:      logFiles.Stdout,
		Stderr:      logFiles.Stderr,
	}
	return spec, logFiles, nil
}
