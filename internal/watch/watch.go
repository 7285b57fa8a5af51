// Package watch reports debounced source changes below a repository root.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/repoctx/internal/discover"
	"github.com/phobologic/repoctx/internal/lang"
)

// DefaultDebounce is the quiet period that ends a burst of events.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a repository tree, skipping ignored directories.
type Watcher struct {
	fs          *fsnotify.Watcher
	root        string
	extraIgnore []string
	debounce    time.Duration
	logger      *slog.Logger
}

// New starts watching root and every directory below it that is not ignored.
func New(root string, extraIgnore []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:          fsw,
		root:        root,
		extraIgnore: extraIgnore,
		debounce:    debounce,
		logger:      logger,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers each burst of changes to onChange as sorted root-relative
// paths, once no event has arrived for the debounce period. Calls never
// overlap; events arriving during a call are delivered in the next burst.
// Run returns when ctx is done or onChange fails.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, paths []string) error) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			rel, relevant := w.handle(event)
			if !relevant {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch.error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			w.logger.Debug("watch.flush", "paths", len(paths))
			if err := onChange(ctx, paths); err != nil {
				return err
			}
		}
	}
}

// handle classifies one event, adding watches for new directories. It
// returns the root-relative path and whether the event can change the index.
func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if discover.Ignored(rel, w.extraIgnore) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("watch.add", "path", rel, "error", err)
			}
			// Files may have landed before the watch was added.
			return rel, true
		}
	}

	if lang.ForExtension(filepath.Ext(event.Name)) != "" {
		return rel, event.Op != fsnotify.Chmod
	}
	// A removed or renamed directory takes its files with it.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return rel, filepath.Ext(event.Name) == ""
	}
	return "", false
}

// addRecursive adds a directory and all its non-ignored subdirectories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && discover.Ignored(d.Name(), w.extraIgnore) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			if errors.Is(err, fsnotify.ErrClosed) {
				return err
			}
			w.logger.Debug("watch.add", "path", path, "error", err)
		}
		return nil
	})
}
