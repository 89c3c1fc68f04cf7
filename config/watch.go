package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchFile watches path for writes and calls onChange with the freshly
// loaded File each time it changes, until ctx is done. Grounded on the
// teacher's workspace.Watcher (internal/workspace/watcher.go), reduced to a
// single-file watch since a client config has no directory tree to walk.
func WatchFile(ctx context.Context, path string, logger zerolog.Logger, onChange func(*File)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(path); err != nil {
		return fmt.Errorf("config: watching %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			f, err := Load(path)
			if err != nil {
				logger.Error().Err(err).Str("path", path).Msg("config: reload failed")
				continue
			}
			onChange(f)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("config: watcher error")
		}
	}
}
