package hydrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// stagePrefix marks directories owned by an in-progress or aborted hydration.
const stagePrefix = ".hydrate-"

// Finalizer writes additional files into a staged tree before it is
// committed. entries describes the copied source tree.
type Finalizer func(stage string, entries []Entry) error

// Mount materializes a copy of one source tree at a target directory.
//
// The copy is built in a staging directory next to the target and swapped
// into place only once the copy and every finalizer succeeded, so readers
// never observe a partial tree. On any failure no tree is left at the target.
type Mount struct {
	// Kind names the tree ("shared", "views") and scopes staging directories.
	Kind string

	// Source is the absolute path of the tree to copy. Empty mounts an
	// empty tree.
	Source string
}

// Apply copies the source tree to target and runs the finalizers on the
// staged copy before committing it.
func (m *Mount) Apply(ctx context.Context, target string, finalizers ...Finalizer) (entries []Entry, err error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, engine.NewHydrationError("creating mount parent", err).WithOp("mkdir").WithCode(engine.ErrCodeCopy)
	}
	if err := SweepStale(parent, m.Kind); err != nil {
		return nil, engine.NewHydrationError("removing stale staging directories", err).WithOp("sweep").WithCode(engine.ErrCodeCommit)
	}

	// Create the stage on the same filesystem so the final rename is atomic.
	stage, err := os.MkdirTemp(parent, stagePrefix+m.Kind+"-")
	if err != nil {
		return nil, engine.NewHydrationError("creating staging directory", err).WithOp("stage").WithCode(engine.ErrCodeCopy)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = os.RemoveAll(stage)
		if err != nil {
			_ = os.RemoveAll(target)
		}
	}()

	if m.Source != "" {
		entries, err = copyTree(ctx, m.Source, stage)
		if err != nil {
			return nil, err
		}
	}

	for _, finalize := range finalizers {
		if ferr := finalize(stage, entries); ferr != nil {
			var e *engine.Error
			if errors.As(ferr, &e) {
				return nil, e
			}
			return nil, engine.NewHydrationError("writing markers", ferr).WithOp("finalize").WithCode(engine.ErrCodeMarker)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, engine.NewHydrationError("hydration cancelled before commit", err).WithCode(engine.ErrCodeCancelled)
	}

	if err := commit(stage, target); err != nil {
		return nil, engine.NewHydrationError("committing hydrated tree", err).WithOp("commit").WithCode(engine.ErrCodeCommit)
	}
	committed = true
	return entries, nil
}

// Remove deletes the tree at target and any staging left next to it.
func (m *Mount) Remove(target string) error {
	if err := SweepStale(filepath.Dir(target), m.Kind); err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("removing %s: %w", target, err)
	}
	return nil
}

// commit swaps stage into target. The previous tree is renamed aside first
// so the target path never holds a mix of old and new files.
func commit(stage, target string) error {
	old := ""
	if _, err := os.Lstat(target); err == nil {
		old = stage + ".old"
		if err := os.Rename(target, old); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.Rename(stage, target); err != nil {
		if old != "" {
			_ = os.RemoveAll(old)
		}
		return err
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

// SweepStale removes staging directories of the given kind left in dir by an
// aborted run. A missing dir is not an error.
func SweepStale(dir, kind string) error {
	matches, err := filepath.Glob(filepath.Join(dir, stagePrefix+kind+"-*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return fmt.Errorf("removing stale stage %s: %w", m, err)
		}
	}
	return nil
}
