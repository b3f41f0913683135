package hydrate

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/manifest"
)

// ViewsHydrator copies the project views tree into read-style HTTP handlers
// selected by the views policy, together with the views.md content marker.
type ViewsHydrator struct {
	policy manifest.ViewsPolicy
	src    *source
}

// NewViewsHydrator creates a views hydrator for the project at root.
func NewViewsHydrator(root string, res *manifest.Resolution, opts ...Option) *ViewsHydrator {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &ViewsHydrator{
		policy: res.Views,
		src: &source{
			kind:      "views",
			dir:       filepath.Join(root, filepath.FromSlash(res.Views.Src)),
			installer: o.installer,
		},
	}
}

// Step implements engine.Hydrator.
func (h *ViewsHydrator) Step() engine.Step { return engine.StepViews }

// Prepare implements engine.Preparer.
func (h *ViewsHydrator) Prepare(ctx context.Context, opts engine.RunOptions) error {
	return h.src.prepare(ctx, opts)
}

// Hydrate implements engine.Hydrator.
func (h *ViewsHydrator) Hydrate(ctx context.Context, fn engine.FunctionDescriptor, functionPath string) (*engine.Outcome, error) {
	target := h.target(fn, functionPath)
	mount := &Mount{Kind: "views"}

	if ok, reason := h.policy.Decide(fn); !ok {
		return skip(mount, fn, target, reason)
	}

	src, err := sourceTree(h.src.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return skip(mount, fn, target, "project has no views code")
	}
	if err == nil {
		err = h.src.failure(fn)
	}
	if err != nil {
		_ = mount.Remove(target)
		return nil, engine.AsError(err, engine.ErrorKindHydration).WithFunction(fn.ID)
	}
	mount.Source = src

	if err := requireDir(functionPath); err != nil {
		return nil, err.WithFunction(fn.ID)
	}

	entries, err := mount.Apply(ctx, target, func(stage string, entries []Entry) error {
		return writeMarker(stage, ViewsMarker, renderContent("views", h.policy.Src, fn, entries))
	})
	if err != nil {
		return nil, engine.AsError(err, engine.ErrorKindHydration).WithFunction(fn.ID)
	}

	zerolog.Ctx(ctx).Debug().Str("target", target).Int("files", len(entries)).Msg("views code hydrated")
	return &engine.Outcome{Applied: true}, nil
}

// Prune implements engine.Hydrator.
func (h *ViewsHydrator) Prune(fn engine.FunctionDescriptor, functionPath string) error {
	mount := &Mount{Kind: "views"}
	return mount.Remove(h.target(fn, functionPath))
}

func (h *ViewsHydrator) target(fn engine.FunctionDescriptor, functionPath string) string {
	return filepath.Join(functionPath, fn.Runtime.Layout().ViewsMount)
}
