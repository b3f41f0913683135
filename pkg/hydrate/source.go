package hydrate

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// Option configures a hydrator.
type Option func(*options)

type options struct {
	provenance []byte
	installer  engine.SourceInstaller
}

// WithProvenance sets the raw project manifest written verbatim as .arc.
// Only the shared hydrator writes provenance.
func WithProvenance(raw []byte) Option {
	return func(o *options) { o.provenance = raw }
}

// WithSourceInstaller installs the source tree's own dependencies once per
// run, before it is copied into any function.
func WithSourceInstaller(si engine.SourceInstaller) Option {
	return func(o *options) { o.installer = si }
}

// source is a project source tree and the outcome of its last preparation.
type source struct {
	kind      string
	dir       string
	installer engine.SourceInstaller

	mu  sync.RWMutex
	err error
}

// prepare installs the tree's dependencies. A missing tree, a run that
// skips installs, or no installer leaves nothing to do.
func (s *source) prepare(ctx context.Context, opts engine.RunOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
	if s.installer == nil || opts.SkipInstall {
		return nil
	}

	dir, err := sourceTree(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil {
		err = s.installer.InstallSource(ctx, dir)
	}
	s.err = err
	return err
}

// failure returns the last preparation error, classified for fn.
func (s *source) failure(fn engine.FunctionDescriptor) error {
	s.mu.RLock()
	err := s.err
	s.mu.RUnlock()
	if err == nil {
		return nil
	}
	return engine.NewInstallError("installing "+s.kind+" source dependencies", err).
		WithFunction(fn.ID).
		WithOp("install-source").
		WithCode(engine.ErrCodeSourceInstall).
		WithDetail("source", s.dir)
}
