package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// dependencyDir is where source dependency installs land. Changes below it
// come from the engine itself.
const dependencyDir = "node_modules"

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called once per debounced batch with the changed paths,
// sorted and de-duplicated.
type ChangeFunc func(ctx context.Context, changed []string) error

// Watcher watches source trees and files and reports batches of changes.
type Watcher struct {
	logger   zerolog.Logger
	debounce time.Duration
	dirs     []string
	files    map[string]bool
	fsw      *fsnotify.Watcher
}

// New creates a watcher over paths. Directories are watched recursively;
// files are watched through their parent directory so editors that replace
// files on save are still seen. Paths that do not exist are skipped.
func New(logger zerolog.Logger, debounce time.Duration, paths ...string) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		logger:   logger.With().Str("component", "watcher").Logger(),
		debounce: debounce,
		files:    make(map[string]bool),
	}
	for _, p := range paths {
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", p).Msg("Failed to stat path for watching")
			continue
		}
		if info.IsDir() {
			w.dirs = append(w.dirs, p)
		} else {
			w.files[p] = true
		}
	}
	return w
}

// Watch blocks until ctx is done, calling onChange after each debounced
// batch. Calls are serialized; changes that arrive while onChange runs are
// collected into the next batch. An error from onChange is logged and
// watching continues.
func (w *Watcher) Watch(ctx context.Context, onChange ChangeFunc) error {
	if len(w.dirs) == 0 && len(w.files) == 0 {
		return errors.New("nothing to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.fsw = fsw
	defer func() { _ = fsw.Close() }()

	for _, dir := range w.dirs {
		if err := w.watchDirectory(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	for file := range w.files {
		if err := fsw.Add(filepath.Dir(file)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", file, err)
		}
	}

	w.logger.Info().
		Int("dirs", len(w.dirs)).
		Int("files", len(w.files)).
		Dur("debounce", w.debounce).
		Msg("Started watching sources")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchDirectory(event.Name); err != nil {
						w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
					}
				}
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Source changed")

			pending[event.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)

			if err := onChange(ctx, changed); err != nil {
				w.logger.Error().Err(err).Int("changed", len(changed)).Msg("Failed to handle changes")
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// relevant filters chmod noise, engine staging directories, installed
// source dependencies and files in watched parents that are not themselves
// watched.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".hydrate-") {
		return false
	}
	name := filepath.Clean(event.Name)
	if w.files[name] {
		return true
	}
	for _, dir := range w.dirs {
		if name == dir {
			return true
		}
		if rel, ok := strings.CutPrefix(name, dir+string(filepath.Separator)); ok {
			return !dependencyPath(rel)
		}
	}
	return false
}

func dependencyPath(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == dependencyDir {
			return true
		}
	}
	return false
}

// watchDirectory adds dirPath and every directory below it to the watcher.
func (w *Watcher) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == dependencyDir && path != dirPath {
				return fs.SkipDir
			}
			return w.fsw.Add(path)
		}
		return nil
	})
}
