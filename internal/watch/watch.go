// Package watch triggers runs from filesystem changes. Events are debounced
// so a burst of saves produces one run, and noisy paths (.git, configured
// globs) are filtered out before they reset the debounce timer.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Trigger is invoked after the debounce window closes with no further
// events. changed lists the paths seen in the window, deduplicated.
type Trigger func(changed []string)

// Watcher watches a project tree recursively.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   []string
	logf     func(format string, args ...interface{})
}

// defaultIgnores are always skipped in addition to configured globs.
var defaultIgnores = []string{".git", "node_modules", ".medic"}

// New creates a Watcher for root. ignore holds glob patterns matched
// against base names and root-relative paths.
func New(root string, debounce time.Duration, ignore []string) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		ignore:   ignore,
		logf:     func(string, ...interface{}) {},
	}
}

// SetLogf sets a progress logger.
func (w *Watcher) SetLogf(logf func(format string, args ...interface{})) {
	if logf != nil {
		w.logf = logf
	}
}

// Run watches until ctx is canceled, invoking trigger after each quiet
// debounce window. New directories created under the root are added to the
// watch set as they appear.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addRecursive(watcher, w.root); err != nil {
		return err
	}
	w.logf("watching %s (debounce %s)", w.root, w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, open := <-watcher.Events:
			if !open {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(watcher, event.Name)
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			pending = make(map[string]bool)
			timer = nil
			timerC = nil
			w.logf("change burst settled (%d paths), triggering run", len(changed))
			trigger(changed)

		case err, open := <-watcher.Errors:
			if !open {
				return nil
			}
			w.logf("watch error: %v", err)
		}
	}
}

// addRecursive watches dir and every non-ignored subdirectory.
func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			w.logf("cannot watch %s: %v", path, err)
		}
		return nil
	})
}

// ignored reports whether a path matches the built-in or configured ignore
// patterns.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, name := range defaultIgnores {
		if base == name || containsSegment(path, name) {
			return true
		}
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func containsSegment(path, segment string) bool {
	for _, p := range strings.Split(filepath.ToSlash(path), "/") {
		if p == segment {
			return true
		}
	}
	return false
}
