package hydrate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/manifest"
)

// SharedHydrator copies the project shared tree into every function that is
// not shared-disabled, together with the .arc provenance marker, the
// shared.md content marker and the derived static.json.
type SharedHydrator struct {
	app        string
	policy     manifest.SharedPolicy
	static     *StaticEmitter
	provenance []byte
	src        *source
}

// NewSharedHydrator creates a shared hydrator for the project at root.
func NewSharedHydrator(root string, res *manifest.Resolution, opts ...Option) *SharedHydrator {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &SharedHydrator{
		app:        res.App,
		policy:     res.Shared,
		static:     &StaticEmitter{Source: filepath.Join(root, filepath.FromSlash(res.Static.Src))},
		provenance: o.provenance,
		src: &source{
			kind:      "shared",
			dir:       filepath.Join(root, filepath.FromSlash(res.Shared.Src)),
			installer: o.installer,
		},
	}
}

// Step implements engine.Hydrator.
func (h *SharedHydrator) Step() engine.Step { return engine.StepShared }

// Prepare implements engine.Preparer.
func (h *SharedHydrator) Prepare(ctx context.Context, opts engine.RunOptions) error {
	return h.src.prepare(ctx, opts)
}

// Hydrate implements engine.Hydrator. A project without shared code still
// gets the markers and static.json over an empty tree.
func (h *SharedHydrator) Hydrate(ctx context.Context, fn engine.FunctionDescriptor, functionPath string) (*engine.Outcome, error) {
	target := h.target(fn, functionPath)
	mount := &Mount{Kind: "shared"}

	if !h.policy.Enabled(fn.ID) {
		return skip(mount, fn, target, "shared disabled for function")
	}
	if err := h.src.failure(fn); err != nil {
		_ = mount.Remove(target)
		return nil, err
	}

	src, err := sourceTree(h.src.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		_ = mount.Remove(target)
		return nil, engine.AsError(err, engine.ErrorKindHydration).WithFunction(fn.ID)
	default:
		mount.Source = src
	}

	if err := requireDir(functionPath); err != nil {
		return nil, err.WithFunction(fn.ID)
	}

	entries, err := mount.Apply(ctx, target, func(stage string, entries []Entry) error {
		arc := h.provenance
		if arc == nil {
			arc = renderProvenance(h.app, fn, h.policy.Src)
		}
		if err := writeMarker(stage, ProvenanceMarker, arc); err != nil {
			return err
		}
		if err := writeMarker(stage, SharedMarker, renderContent("shared", h.policy.Src, fn, entries)); err != nil {
			return err
		}
		return h.static.Emit(stage)
	})
	if err != nil {
		return nil, engine.AsError(err, engine.ErrorKindHydration).WithFunction(fn.ID)
	}

	zerolog.Ctx(ctx).Debug().Str("target", target).Int("files", len(entries)).Msg("shared code hydrated")
	return &engine.Outcome{Applied: true}, nil
}

// Prune implements engine.Hydrator.
func (h *SharedHydrator) Prune(fn engine.FunctionDescriptor, functionPath string) error {
	mount := &Mount{Kind: "shared"}
	return mount.Remove(h.target(fn, functionPath))
}

func (h *SharedHydrator) target(fn engine.FunctionDescriptor, functionPath string) string {
	return filepath.Join(functionPath, fn.Runtime.Layout().SharedMount)
}

// skip removes any stale artifact at target and reports why none was written.
func skip(mount *Mount, fn engine.FunctionDescriptor, target, reason string) (*engine.Outcome, error) {
	if err := mount.Remove(target); err != nil {
		return nil, engine.NewHydrationError("removing stale artifact", err).
			WithFunction(fn.ID).
			WithOp("prune").
			WithCode(engine.ErrCodeCommit)
	}
	return &engine.Outcome{Reason: reason}, nil
}

// sourceTree resolves a source tree to a real directory.
func sourceTree(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", engine.NewHydrationError("source is not a directory", nil).
			WithCode(engine.ErrCodeInvalidSource).
			WithDetail("path", path)
	}
	return resolved, nil
}

func requireDir(path string) *engine.Error {
	info, err := os.Stat(path)
	if err != nil {
		return engine.NewHydrationError("function directory is missing", err).WithCode(engine.ErrCodeInvalidSource)
	}
	if !info.IsDir() {
		return engine.NewHydrationError("function path is not a directory", nil).WithCode(engine.ErrCodeInvalidSource)
	}
	return nil
}
