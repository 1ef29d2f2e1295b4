package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/Veraticus/quiesce/pkg/interfaces"
)

// EventFilter reports whether a file-system event counts as activity.
type EventFilter func(event fsnotify.Event) bool

// OpFilter accepts events carrying any of ops.
func OpFilter(ops fsnotify.Op) EventFilter {
	return func(event fsnotify.Event) bool {
		return event.Op&ops != 0
	}
}

// AllOf accepts an event only if every filter accepts it.
func AllOf(filters ...EventFilter) EventFilter {
	return func(event fsnotify.Event) bool {
		for _, f := range filters {
			if !f(event) {
				return false
			}
		}
		return true
	}
}

// Not inverts a filter.
func Not(f EventFilter) EventFilter {
	return func(event fsnotify.Event) bool { return !f(event) }
}

// ParseOps converts config event names into an fsnotify.Op mask.
func ParseOps(names []string) (fsnotify.Op, error) {
	var ops fsnotify.Op
	for _, name := range names {
		switch strings.ToLower(name) {
		case "create":
			ops |= fsnotify.Create
		case "write":
			ops |= fsnotify.Write
		case "remove":
			ops |= fsnotify.Remove
		case "rename":
			ops |= fsnotify.Rename
		case "chmod":
			ops |= fsnotify.Chmod
		default:
			return 0, fmt.Errorf("unknown event %q", name)
		}
	}
	return ops, nil
}

// FSWatcher watches directory trees and pulses a notifier for accepted events.
type FSWatcher struct {
	roots    []string
	ignore   []string
	filter   EventFilter
	notifier interfaces.ActivityNotifier
	watcher  *fsnotify.Watcher
	log      *logrus.Entry
}

// NewFSWatcher creates a watcher over roots and registers every directory
// beneath them. Paths with any segment matching an ignore glob are skipped.
func NewFSWatcher(roots, ignore []string, filter EventFilter, notifier interfaces.ActivityNotifier) (*FSWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify new: %w", err)
	}

	if filter == nil {
		filter = OpFilter(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename)
	}

	w := &FSWatcher{
		roots:    roots,
		ignore:   ignore,
		filter:   filter,
		notifier: notifier,
		watcher:  watcher,
		log:      logrus.WithField("component", "fswatch"),
	}

	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}

	return w, nil
}

// addTree registers root and all non-ignored directories below it
func (w *FSWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			// Directories can vanish mid-walk during a sync burst
			w.log.WithError(err).WithField("path", path).Debug("skipping unreadable path")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether any segment of path matches an ignore glob
func (w *FSWatcher) ignored(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == "" {
			continue
		}
		for _, glob := range w.ignore {
			if ok, _ := filepath.Match(glob, segment); ok {
				return true
			}
		}
	}
	return false
}

// WatchList returns the directories currently being watched.
func (w *FSWatcher) WatchList() []string {
	return w.watcher.WatchList()
}

// Run processes events until ctx is done, then closes the watcher.
func (w *FSWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("fsnotify watcher failure")
		case <-ctx.Done():
			w.log.Debug("file watcher received stop signal")
			return nil
		}
	}
}

func (w *FSWatcher) handle(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.WithError(err).Warn("failed to watch new directory")
			}
		}
	}

	if !w.filter(event) {
		return
	}

	w.log.WithFields(logrus.Fields{"op": event.Op.String(), "path": event.Name}).Trace("activity")
	w.notifier.NotifyActivity()
}
