package config

import "reflect"

// Diff describes what changed between two configurations, used by the
// reload operation to decide which programs to start, stop or restart.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
	// SupervisorChanged is true when daemon-wide options differ; those
	// require a full daemon restart and reload only warns about them.
	SupervisorChanged bool
}

// Empty reports whether the two configurations are equivalent.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && !d.SupervisorChanged
}

// Compare computes the program-level difference between old and new
// configurations.
func Compare(oldConfig, newConfig *Config) Diff {
	var diff Diff

	oldPrograms := make(map[string]*ProgramConfig, len(oldConfig.Programs))
	for i := range oldConfig.Programs {
		oldPrograms[oldConfig.Programs[i].Name] = &oldConfig.Programs[i]
	}

	for i := range newConfig.Programs {
		p := &newConfig.Programs[i]
		oldProgram, exists := oldPrograms[p.Name]
		if !exists {
			diff.Added = append(diff.Added, p.Name)
			continue
		}
		if !reflect.DeepEqual(oldProgram, p) {
			diff.Changed = append(diff.Changed, p.Name)
		}
		delete(oldPrograms, p.Name)
	}

	for i := range oldConfig.Programs {
		if _, stillRemoved := oldPrograms[oldConfig.Programs[i].Name]; stillRemoved {
			diff.Removed = append(diff.Removed, oldConfig.Programs[i].Name)
		}
	}

	diff.SupervisorChanged = !reflect.DeepEqual(oldConfig.Supervisor, newConfig.Supervisor)
	return diff
}
