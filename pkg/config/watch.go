package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the config file whenever it is written or replaced and
// passes each successfully loaded config to onChange. The directory is
// watched rather than the file so editors that save by rename are seen.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify new: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}

	log := logrus.WithFields(logrus.Fields{"component": "config", "path": path})
	target := filepath.Clean(path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadFrom(path)
			if err != nil {
				log.WithError(err).Warn("ignoring invalid config change")
				continue
			}
			log.WithField("inactivity_timeout", cfg.InactivityTimeout).Info("config reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher failure")
		case <-ctx.Done():
			return nil
		}
	}
}
