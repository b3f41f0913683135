// Package install provides the default dependency installer, which shells
// out to each runtime's package manager inside the function directory.
package install

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// Strategy returns the install command for a function directory, or nil if
// the function declares no dependencies.
type Strategy func(functionPath string) (*Command, error)

// DefaultStrategies maps each runtime onto its package manager.
func DefaultStrategies() map[engine.Runtime]Strategy {
	return map[engine.Runtime]Strategy{
		engine.RuntimeNode:   npmStrategy,
		engine.RuntimePython: pipStrategy,
		engine.RuntimeRuby:   bundlerStrategy,
	}
}

func npmStrategy(dir string) (*Command, error) {
	ok, err := hasFile(dir, "package.json")
	if err != nil || !ok {
		return nil, err
	}
	lock, err := hasFile(dir, "package-lock.json")
	if err != nil {
		return nil, err
	}
	if lock {
		return &Command{Name: "npm", Args: []string{"ci", "--omit=dev", "--no-audit", "--no-fund"}, Dir: dir}, nil
	}
	return &Command{Name: "npm", Args: []string{"install", "--omit=dev", "--no-audit", "--no-fund"}, Dir: dir}, nil
}

func pipStrategy(dir string) (*Command, error) {
	ok, err := hasFile(dir, "requirements.txt")
	if err != nil || !ok {
		return nil, err
	}
	deps := engine.RuntimePython.Layout().DepsDir
	return &Command{
		Name: "pip3",
		Args: []string{"install", "-r", "requirements.txt", "-t", deps, "--upgrade", "--no-input"},
		Dir:  dir,
	}, nil
}

func bundlerStrategy(dir string) (*Command, error) {
	ok, err := hasFile(dir, "Gemfile")
	if err != nil || !ok {
		return nil, err
	}
	deps := filepath.ToSlash(engine.RuntimeRuby.Layout().DepsDir)
	return &Command{
		Name: "bundle",
		Args: []string{"install"},
		Dir:  dir,
		Env:  []string{"BUNDLE_PATH=" + deps},
	}, nil
}

func hasFile(dir, name string) (bool, error) {
	info, err := os.Stat(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// PackageManagerInstaller implements engine.Installer by running the
// runtime's package manager in the function directory.
type PackageManagerInstaller struct {
	runner     Runner
	strategies map[engine.Runtime]Strategy
}

var (
	_ engine.Installer       = (*PackageManagerInstaller)(nil)
	_ engine.SourceInstaller = (*PackageManagerInstaller)(nil)
)

// Option configures a PackageManagerInstaller.
type Option func(*PackageManagerInstaller)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(i *PackageManagerInstaller) { i.runner = r }
}

// WithStrategy overrides the install strategy for one runtime.
func WithStrategy(rt engine.Runtime, s Strategy) Option {
	return func(i *PackageManagerInstaller) { i.strategies[rt] = s }
}

// New creates an installer with the default strategies.
func New(opts ...Option) *PackageManagerInstaller {
	i := &PackageManagerInstaller{
		runner:     ExecRunner{},
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// maxOutput bounds the collaborator output kept in error details.
const maxOutput = 4096

// Install implements engine.Installer.
func (i *PackageManagerInstaller) Install(ctx context.Context, fn engine.FunctionDescriptor, functionPath string) error {
	strategy, ok := i.strategies[fn.Runtime]
	if !ok {
		return engine.NewInstallError("no installer for runtime "+string(fn.Runtime), nil).
			WithFunction(fn.ID).
			WithCode(engine.ErrCodeUnknownRuntime)
	}

	cmd, err := strategy(functionPath)
	if err != nil {
		return engine.NewInstallError("inspecting function dependencies", err).
			WithFunction(fn.ID).
			WithCode(engine.ErrCodeInvalidSource)
	}
	if err := i.run(ctx, cmd); err != nil {
		return err.WithFunction(fn.ID)
	}
	return nil
}

// InstallSource implements engine.SourceInstaller. Shared and views trees
// carry node dependencies, installed in place so they travel with the copy.
func (i *PackageManagerInstaller) InstallSource(ctx context.Context, dir string) error {
	cmd, err := i.strategies[engine.RuntimeNode](dir)
	if err != nil {
		return engine.NewInstallError("inspecting source dependencies", err).
			WithCode(engine.ErrCodeInvalidSource).
			WithDetail("source", dir)
	}
	if err := i.run(ctx, cmd); err != nil {
		return err.WithDetail("source", dir)
	}
	return nil
}

func (i *PackageManagerInstaller) run(ctx context.Context, cmd *Command) *engine.Error {
	logger := zerolog.Ctx(ctx)
	if cmd == nil {
		logger.Debug().Msg("no dependency manifest, nothing to install")
		return nil
	}

	logger.Debug().Str("command", cmd.String()).Msg("installing dependencies")
	result, err := i.runner.Run(ctx, *cmd)
	if err != nil {
		ierr := engine.NewInstallError(cmd.Name+" failed", err).
			WithOp(cmd.String()).
			WithCode(engine.ErrCodeCollaborator)
		if result != nil {
			ierr.WithDetail("exit_code", result.ExitCode).
				WithDetail("stderr", tail(result.Stderr, maxOutput))
		}
		return ierr
	}

	ev := logger.Info().Str("command", cmd.String()).Str("dir", cmd.Dir)
	if result != nil {
		ev = ev.Dur("duration", result.Duration)
	}
	ev.Msg("dependencies installed")
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
