// Package watcher reports changes of files being written by a test run.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyWatcher is the interface for fsnotify operations, allowing mocking in tests.
type fsnotifyWatcher interface {
	Add(name string) error
	Close() error
}

// Watcher monitors a set of files and calls onChange with the files that
// changed, once writes have settled for the debounce delay.
// Parent directories are watched, so a file that is created or replaced
// after the watcher started is noticed too.
type Watcher struct {
	fsWatcher fsnotifyWatcher
	events    <-chan fsnotify.Event
	errors    <-chan error

	files         map[string]struct{}
	debounceDelay time.Duration
	onChange      func(paths []string)

	pending map[string]struct{}
}

// New creates a Watcher for files.
func New(files []string, debounce time.Duration, onChange func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := newWatcher(fsw, fsw.Events, fsw.Errors, debounce, onChange)
	if err := w.add(files); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func newWatcher(fsw fsnotifyWatcher, events <-chan fsnotify.Event, errors <-chan error, debounce time.Duration, onChange func([]string)) *Watcher {
	return &Watcher{
		fsWatcher:     fsw,
		events:        events,
		errors:        errors,
		files:         make(map[string]struct{}),
		debounceDelay: debounce,
		onChange:      onChange,
		pending:       make(map[string]struct{}),
	}
}

func (w *Watcher) add(files []string) error {
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
		slog.Debug("watching directory", "path", dir)
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounceDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.fsWatcher.Close()

		case event, ok := <-w.events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.pending[event.Name] = struct{}{}
				timer.Reset(w.debounceDelay)
			}

		case err, ok := <-w.errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)

		case <-timer.C:
			w.flush()
		}
	}
}

// relevant reports whether event changes the content of a watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	_, ok := w.files[filepath.Clean(event.Name)]
	return ok
}

func (w *Watcher) flush() {
	if len(w.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.pending = make(map[string]struct{})
	w.onChange(paths)
}
