package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the file at configPath changes
// and calls onReload with the newly validated config. Reloads that fail
// validation are reported through onError and the previous configuration
// stays in effect. Watch blocks until ctx is canceled or the watcher fails
// to start, closing the watcher before returning.
//
// Editors frequently replace a file rather than writing it in place, which
// shows up as a Remove followed by a Create; Watch re-adds the path on
// Remove/Rename so reloads keep working across that pattern.
func Watch(ctx context.Context, configPath string, onReload func(*Config), onError func(error)) error {
	if configPath == "" {
		return fmt.Errorf("config.Watch requires an explicit config file path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				_ = watcher.Add(configPath)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			cfg, err := Load(configPath)
			if err != nil {
				onError(fmt.Errorf("config reload failed: %w", err))
				continue
			}
			onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("config watcher error: %w", err))
		}
	}
}
