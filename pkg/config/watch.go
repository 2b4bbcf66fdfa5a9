package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

const watchDebounce = 500 * time.Millisecond

// Watch observes the configuration file and invokes onChange after writes
// settle. Editors replace files via rename, so the parent directory is
// watched rather than the file itself. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIOError("failed to create configuration watcher", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return errors.NewIOError("failed to watch configuration directory", err).WithContext("dir", dir)
	}

	logger.Infof("Watching configuration file, path: %s", path)

	target := filepath.Clean(path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			logger.Debugf("Configuration file event: %s", event)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Configuration watcher error: %v", err)
		}
	}
}
