package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lpsinger/hydrate/pkg/config"
	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/hydrate"
	"github.com/lpsinger/hydrate/pkg/install"
	"github.com/lpsinger/hydrate/pkg/manifest"
	"github.com/lpsinger/hydrate/pkg/stores"
	"github.com/lpsinger/hydrate/pkg/telemetry"
)

// DefaultHistory is the number of runs kept in the ledger per project.
const DefaultHistory = 50

// ErrNothingToRetry is returned by RetryFailed when the last recorded
// outcome of every function succeeded.
var ErrNothingToRetry = errors.New("no failed functions to retry")

// Project is a loaded, resolved and classified project ready to hydrate.
type Project struct {
	// Root is the absolute project root.
	Root string

	// Config is the loaded project file.
	Config *config.Project

	// Resolution holds the resolved functions and hydration policies.
	Resolution *manifest.Resolution

	// Functions are the resolved functions with runtimes assigned.
	Functions []engine.FunctionDescriptor

	installer   engine.Installer
	telemetry   *telemetry.Telemetry
	store       stores.Store
	ownsStore   bool
	ledger      bool
	parallelism int
	history     int
	unsubscribe func()
}

// Option configures a Project.
type Option func(*Project)

// WithInstaller replaces the default package-manager installer.
func WithInstaller(i engine.Installer) Option {
	return func(p *Project) { p.installer = i }
}

// WithTelemetry wires logging, tracing, metrics and events into runs.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Project) { p.telemetry = t }
}

// WithLedger opens the run ledger at the configured state database path.
func WithLedger() Option {
	return func(p *Project) { p.ledger = true }
}

// WithStore uses an already opened ledger. The caller keeps ownership.
func WithStore(s stores.Store) Option {
	return func(p *Project) { p.store = s }
}

// WithParallelism overrides the configured worker count.
func WithParallelism(n int) Option {
	return func(p *Project) { p.parallelism = n }
}

// WithHistory sets how many runs the ledger keeps. Zero or less keeps all.
func WithHistory(n int) Option {
	return func(p *Project) { p.history = n }
}

// Load loads the project file found in root and prepares the project.
func Load(ctx context.Context, root string, opts ...Option) (*Project, error) {
	cfg, err := config.NewLoader().LoadDir(root)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// New resolves and classifies a loaded project file. Manifest errors are
// returned before anything on disk is touched.
func New(ctx context.Context, cfg *config.Project, opts ...Option) (*Project, error) {
	p := &Project{
		Root:    cfg.Root,
		history: DefaultHistory,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.resolve(cfg); err != nil {
		return nil, err
	}

	if p.installer == nil {
		p.installer = install.New()
	}
	if p.parallelism <= 0 {
		p.parallelism = cfg.Settings().Parallelism
	}

	if p.store == nil && p.ledger {
		store, err := stores.Open(ctx, stores.Config{Path: p.StatePath()})
		if err != nil {
			return nil, fmt.Errorf("failed to open run ledger: %w", err)
		}
		p.store = store
		p.ownsStore = true
	}

	if p.store != nil && p.telemetry != nil {
		p.unsubscribe = p.recordEvents()
	}

	return p, nil
}

func (p *Project) resolve(cfg *config.Project) error {
	res, err := manifest.Resolve(cfg.App())
	if err != nil {
		return err
	}
	fns, err := res.Classified()
	if err != nil {
		return err
	}
	p.Config = cfg
	p.Resolution = res
	p.Functions = fns
	return nil
}

// recordEvents appends every published event to the ledger.
func (p *Project) recordEvents() func() {
	var done atomic.Bool
	p.telemetry.Events.Subscribe(func(e engine.Event) {
		if done.Load() {
			return
		}
		if err := p.store.AppendEvent(context.Background(), &e); err != nil {
			p.telemetry.Logger.WithError(err).Warn("failed to record event")
		}
	}, nil)
	return func() { done.Store(true) }
}

// Reload re-reads the project file. On error the previous definition is
// kept.
func (p *Project) Reload() error {
	cfg, err := config.NewLoader().Load(p.Config.Path)
	if err != nil {
		return err
	}
	return p.resolve(cfg)
}

// StatePath returns the absolute path of the run ledger.
func (p *Project) StatePath() string {
	return filepath.Join(p.Root, filepath.FromSlash(p.Config.Settings().StateDB))
}

// Store returns the run ledger, or nil when none is configured.
func (p *Project) Store() stores.Store {
	return p.store
}

// WatchPaths returns the absolute sources whose changes require
// re-hydration: the shared and views trees, the static manifest, and the
// project file itself.
func (p *Project) WatchPaths() []string {
	abs := func(rel string) string { return filepath.Join(p.Root, filepath.FromSlash(rel)) }
	return []string{
		abs(p.Resolution.Shared.Src),
		abs(p.Resolution.Views.Src),
		abs(p.Resolution.Static.Src),
		p.Config.Path,
	}
}

// Engine builds an engine over the project's current definition.
func (p *Project) Engine() (*engine.Engine, error) {
	var opts []hydrate.Option
	if si, ok := p.installer.(engine.SourceInstaller); ok {
		opts = append(opts, hydrate.WithSourceInstaller(si))
	}
	cfg := engine.Config{
		Root:        p.Root,
		Installer:   p.installer,
		Shared:      hydrate.NewSharedHydrator(p.Root, p.Resolution, append(opts, hydrate.WithProvenance(p.Config.Raw))...),
		Views:       hydrate.NewViewsHydrator(p.Root, p.Resolution, opts...),
		Parallelism: p.parallelism,
	}
	if p.store != nil {
		cfg.Recorder = p.store
	}
	if p.telemetry != nil {
		cfg.Publisher = p.telemetry.Events
		cfg.Metrics = p.telemetry.Metrics
	}
	return engine.New(cfg)
}

// Hydrate runs the full pipeline over the project's functions. The report
// is returned even when ctx is cancelled mid-run.
func (p *Project) Hydrate(ctx context.Context, opts engine.RunOptions) (*engine.RunReport, error) {
	eng, err := p.Engine()
	if err != nil {
		return nil, err
	}

	report, err := eng.Run(ctx, p.Functions, opts)
	if report == nil {
		return nil, err
	}

	if p.telemetry != nil {
		for _, fr := range report.Functions {
			for _, step := range engine.Steps {
				if res := fr.Steps[step]; res != nil && res.Status == engine.StepStatusFailed && res.Error != nil {
					p.telemetry.Metrics.RecordError(res.Error)
				}
			}
		}
	}

	if p.store != nil && p.history > 0 {
		pruned, perr := p.store.PruneRuns(context.WithoutCancel(ctx), p.Root, p.history)
		if perr != nil {
			zerolog.Ctx(ctx).Warn().Err(perr).Msg("failed to prune run history")
		} else if pruned > 0 {
			zerolog.Ctx(ctx).Debug().Int64("pruned", pruned).Msg("pruned run history")
		}
	}

	return report, err
}

// RetryFailed hydrates only the functions whose last recorded outcome was
// failed or cancelled. Functions no longer declared are ignored.
func (p *Project) RetryFailed(ctx context.Context, opts engine.RunOptions) (*engine.RunReport, error) {
	if p.store == nil {
		return nil, errors.New("retrying failed functions requires a run ledger")
	}

	ids, err := p.store.LastFailed(ctx, p.Root)
	if err != nil {
		return nil, err
	}

	var only []engine.FunctionID
	for _, id := range ids {
		if _, ok := p.Resolution.Function(id); !ok {
			zerolog.Ctx(ctx).Debug().Str("function", id.String()).Msg("failed function is no longer declared")
			continue
		}
		only = append(only, id)
	}
	if len(only) == 0 {
		return nil, ErrNothingToRetry
	}

	opts.Only = only
	return p.Hydrate(ctx, opts)
}

// Close releases the ledger if the project opened it.
func (p *Project) Close() error {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	if p.ownsStore && p.store != nil {
		return p.store.Close()
	}
	return nil
}
