package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/lpsinger/hydrate/pkg/engine"

// DefaultParallelism is the worker count used when Config.Parallelism is unset.
const DefaultParallelism = 10

// Config configures an Engine.
type Config struct {
	// Root is the project root all function paths are relative to.
	Root string

	// Installer installs per-function dependencies. Required.
	Installer Installer

	// Shared hydrates the shared tree together with its static manifest.
	// Nil disables both steps.
	Shared Hydrator

	// Views hydrates the views tree. Nil disables the step.
	Views Hydrator

	// Parallelism is the maximum number of functions processed concurrently.
	Parallelism int

	// Publisher receives timeline events. Optional.
	Publisher EventPublisher

	// Recorder persists the final report. Optional.
	Recorder RunRecorder

	// Metrics receives run and step measurements. Optional.
	Metrics MetricsRecorder
}

// RunOptions adjusts a single run.
type RunOptions struct {
	// SkipInstall re-hydrates shared and views code without reinstalling dependencies.
	SkipInstall bool

	// Only restricts the run to the listed functions. Empty means all.
	Only []FunctionID
}

// Engine runs the per-function hydration pipeline over a worker pool.
// Functions are independent: each gets install, then shared and views
// concurrently, with the static manifest derived inside the shared step.
type Engine struct {
	cfg    Config
	tracer trace.Tracer
}

// New creates a new engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("engine: root is required")
	}
	if cfg.Installer == nil {
		return nil, fmt.Errorf("engine: installer is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Engine{
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Run hydrates every classified function. A manifest error (an unclassified
// or unknown function) aborts before any work starts. Per-function failures
// are reported in the returned RunReport and never abort siblings. If ctx is
// cancelled, the partial report is returned together with ctx.Err().
func (e *Engine) Run(ctx context.Context, fns []FunctionDescriptor, opts RunOptions) (*RunReport, error) {
	selected, err := e.selectFunctions(fns, opts.Only)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		ID:        uuid.New().String(),
		Root:      e.cfg.Root,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Functions: make([]*FunctionReport, len(selected)),
	}
	for i, fn := range selected {
		report.Functions[i] = &FunctionReport{
			Function: fn,
			Steps:    make(map[Step]*StepResult, len(Steps)),
		}
	}

	ctx, span := e.tracer.Start(ctx, "hydrate.run", trace.WithAttributes(
		attribute.String("run.id", report.ID),
		attribute.Int("run.functions", len(selected)),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Str("run_id", report.ID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Int("functions", len(selected)).Bool("skip_install", opts.SkipInstall).Msg("hydration started")

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordRunStarted()
	}
	e.publish(ctx, &Event{RunID: report.ID, Type: EventTypeRunStarted, Message: "run started"})

	e.prepare(ctx, report.ID, opts)
	e.runPool(ctx, report, opts)

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
	report.Summary = summarize(report.Functions)
	report.Status = runStatus(report.Summary)

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordRunCompleted(report.Status, report.Duration)
	}
	if e.cfg.Recorder != nil {
		// The ledger must see cancelled runs too.
		if err := e.cfg.Recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn().Err(err).Msg("failed to record run")
		}
	}
	e.publish(context.WithoutCancel(ctx), &Event{
		RunID:   report.ID,
		Type:    EventTypeRunCompleted,
		Message: fmt.Sprintf("run completed with status %s", report.Status),
	})

	span.SetAttributes(attribute.String("run.status", string(report.Status)))
	logger.Info().
		Str("status", string(report.Status)).
		Int("succeeded", report.Summary.Succeeded).
		Int("failed", report.Summary.Failed).
		Int("cancelled", report.Summary.Cancelled).
		Dur("duration", report.Duration).
		Msg("hydration completed")

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// selectFunctions validates classification and applies the Only filter.
func (e *Engine) selectFunctions(fns []FunctionDescriptor, only []FunctionID) ([]FunctionDescriptor, error) {
	index := make(map[FunctionID]bool, len(fns))
	for _, fn := range fns {
		if err := fn.Runtime.Validate(); err != nil {
			return nil, NewManifestError("function is not classified", err).
				WithFunction(fn.ID).
				WithCode(ErrCodeUnknownRuntime)
		}
		if index[fn.ID] {
			return nil, NewManifestError("duplicate function", nil).
				WithFunction(fn.ID).
				WithCode(ErrCodeDuplicate)
		}
		index[fn.ID] = true
	}
	if len(only) == 0 {
		return fns, nil
	}

	want := make(map[FunctionID]bool, len(only))
	for _, id := range only {
		if !index[id] {
			return nil, NewManifestError("requested function is not declared", nil).
				WithFunction(id).
				WithCode(ErrCodeUnknownFunction)
		}
		want[id] = true
	}
	selected := make([]FunctionDescriptor, 0, len(want))
	for _, fn := range fns {
		if want[fn.ID] {
			selected = append(selected, fn)
		}
	}
	return selected, nil
}

// prepare runs per-run source preparation for hydrators that need it.
// Failures are surfaced per function by the hydrator itself.
func (e *Engine) prepare(ctx context.Context, runID string, opts RunOptions) {
	for _, h := range []Hydrator{e.cfg.Shared, e.cfg.Views} {
		p, ok := h.(Preparer)
		if !ok {
			continue
		}
		if err := p.Prepare(ctx, opts); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("step", string(h.Step())).Msg("source preparation failed")
			e.publish(ctx, &Event{
				RunID:   runID,
				Type:    EventTypeWarning,
				Step:    h.Step(),
				Message: err.Error(),
			})
		}
	}
}

// runPool processes functions on a bounded worker pool.
func (e *Engine) runPool(ctx context.Context, report *RunReport, opts RunOptions) {
	workerCount := e.cfg.Parallelism
	if len(report.Functions) < workerCount {
		workerCount = len(report.Functions)
	}

	workQueue := make(chan *FunctionReport, len(report.Functions))
	for _, fr := range report.Functions {
		workQueue <- fr
	}
	close(workQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fr := range workQueue {
				if ctx.Err() != nil {
					cancelRemaining(fr, "run cancelled before function started")
					continue
				}
				e.runFunction(ctx, report.ID, fr, opts)
			}
		}()
	}
	wg.Wait()
}

// runFunction runs install, then shared and views concurrently, for one function.
func (e *Engine) runFunction(ctx context.Context, runID string, fr *FunctionReport, opts RunOptions) {
	fn := fr.Function
	fnPath := fn.Path(e.cfg.Root)

	ctx, span := e.tracer.Start(ctx, "hydrate.function", trace.WithAttributes(
		attribute.String("function.id", fn.ID.String()),
		attribute.String("function.runtime", string(fn.Runtime)),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().
		Str("function", fn.ID.String()).
		Str("runtime", string(fn.Runtime)).
		Logger()
	ctx = logger.WithContext(ctx)

	e.publish(ctx, &Event{RunID: runID, Function: fn.ID.String(), Type: EventTypeFunctionStarted, Message: "function started"})

	if !e.install(ctx, runID, fr, fnPath, opts) {
		e.pruneAll(ctx, fn, fnPath)
		for _, step := range []Step{StepShared, StepViews, StepStatic} {
			if _, done := fr.Steps[step]; !done {
				fr.Steps[step] = &StepResult{Status: StepStatusSkipped, Reason: "dependency install did not complete"}
			}
		}
		e.finishFunction(ctx, runID, fr, span)
		return
	}

	e.hydrate(ctx, runID, fr, fnPath)
	e.finishFunction(ctx, runID, fr, span)
}

// install runs the installer step and reports whether hydration may proceed.
func (e *Engine) install(ctx context.Context, runID string, fr *FunctionReport, fnPath string, opts RunOptions) bool {
	fn := fr.Function
	if opts.SkipInstall {
		fr.Steps[StepInstall] = &StepResult{Status: StepStatusSkipped, Reason: "install skipped by request"}
		return true
	}

	start := time.Now()
	err := e.cfg.Installer.Install(ctx, fn, fnPath)
	res := &StepResult{Status: StepStatusSucceeded, Duration: time.Since(start)}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.Status = StepStatusCancelled
		res.Reason = "run cancelled during install"
		cancelRemaining(fr, "run cancelled during install")
	default:
		res.Status = StepStatusFailed
		res.Error = AsError(err, ErrorKindInstall)
		if res.Error.Function == "" {
			res.Error.WithFunction(fn.ID)
		}
	}
	e.recordStep(ctx, runID, fr, StepInstall, res)
	return res.Status == StepStatusSucceeded
}

// hydrate runs the shared and views hydrators concurrently. Either both
// artifacts survive, or on any failure both are removed.
func (e *Engine) hydrate(ctx context.Context, runID string, fr *FunctionReport, fnPath string) {
	fn := fr.Function

	var mu sync.Mutex
	results := make(map[Step]*stepOutcome, 2)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range []Hydrator{e.cfg.Shared, e.cfg.Views} {
		if h == nil {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			outcome, err := h.Hydrate(gctx, fn, fnPath)
			r := &stepOutcome{step: h.Step(), res: &StepResult{Duration: time.Since(start)}}
			switch {
			case err == nil && outcome != nil && outcome.Applied:
				r.res.Status = StepStatusSucceeded
			case err == nil:
				r.res.Status = StepStatusSkipped
				if outcome != nil {
					r.res.Reason = outcome.Reason
				}
			case ctx.Err() != nil:
				r.res.Status = StepStatusCancelled
				r.res.Reason = "run cancelled during hydration"
			case gctx.Err() != nil && Cancelled(err):
				r.res.Status = StepStatusFailed
				r.res.RolledBack = true
				r.res.Error = NewHydrationError("aborted after sibling step failed", err).
					WithFunction(fn.ID).
					WithCode(ErrCodeDependencyFailed)
			default:
				r.res.Status = StepStatusFailed
				r.res.Error = AsError(err, ErrorKindHydration)
				if r.res.Error.Function == "" {
					r.res.Error.WithFunction(fn.ID)
				}
			}
			mu.Lock()
			results[r.step] = r
			mu.Unlock()
			return err
		})
	}
	groupErr := g.Wait()

	if e.cfg.Shared == nil {
		results[StepShared] = &stepOutcome{step: StepShared, res: &StepResult{Status: StepStatusSkipped, Reason: "shared hydration not configured"}}
	}
	if e.cfg.Views == nil {
		results[StepViews] = &stepOutcome{step: StepViews, res: &StepResult{Status: StepStatusSkipped, Reason: "views hydration not configured"}}
	}

	if groupErr != nil {
		e.pruneAll(ctx, fn, fnPath)
		for _, r := range results {
			if r.res.Status == StepStatusSucceeded {
				r.res.Status = StepStatusFailed
				r.res.RolledBack = true
				r.res.Error = NewHydrationError("rolled back after sibling step failed", groupErr).
					WithFunction(fn.ID).
					WithCode(ErrCodeDependencyFailed)
			}
		}
	}

	shared := results[StepShared]
	fr.Steps[StepStatic] = staticResult(shared)
	for _, step := range []Step{StepShared, StepViews} {
		e.recordStep(ctx, runID, fr, step, results[step].res)
	}
	e.recordStep(ctx, runID, fr, StepStatic, fr.Steps[StepStatic])
}

// stepOutcome pairs a hydrator's step with its result.
type stepOutcome struct {
	step Step
	res  *StepResult
}

// staticResult derives the static step result from the shared step.
func staticResult(shared *stepOutcome) *StepResult {
	switch shared.res.Status {
	case StepStatusSucceeded:
		return &StepResult{Status: StepStatusSucceeded}
	case StepStatusFailed:
		if IsDerivationError(shared.res.Error) {
			return &StepResult{Status: StepStatusFailed, Error: shared.res.Error}
		}
		return &StepResult{Status: StepStatusSkipped, Reason: "shared hydration failed"}
	case StepStatusCancelled:
		return &StepResult{Status: StepStatusCancelled, Reason: shared.res.Reason}
	default:
		return &StepResult{Status: StepStatusSkipped, Reason: "function has no shared artifact"}
	}
}

func (e *Engine) pruneAll(ctx context.Context, fn FunctionDescriptor, fnPath string) {
	for _, h := range []Hydrator{e.cfg.Shared, e.cfg.Views} {
		if h == nil {
			continue
		}
		if err := h.Prune(fn, fnPath); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("step", string(h.Step())).Msg("failed to prune artifact")
		}
	}
}

func (e *Engine) recordStep(ctx context.Context, runID string, fr *FunctionReport, step Step, res *StepResult) {
	fr.Steps[step] = res
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordStep(step, res.Status, fr.Function.Runtime, res.Duration)
	}

	ev := zerolog.Ctx(ctx).Debug()
	if res.Status == StepStatusFailed {
		ev = zerolog.Ctx(ctx).Error().Err(res.Error)
	}
	ev.Str("step", string(step)).Str("status", string(res.Status)).Str("reason", res.Reason).Msg("step completed")

	e.publish(ctx, &Event{
		RunID:    runID,
		Function: fr.Function.ID.String(),
		Type:     EventTypeStepCompleted,
		Step:     step,
		Status:   res.Status,
		Message:  fmt.Sprintf("%s %s", step, res.Status),
	})
}

func (e *Engine) finishFunction(ctx context.Context, runID string, fr *FunctionReport, span trace.Span) {
	evType := EventTypeFunctionCompleted
	msg := "function hydrated"
	if err := fr.Err(); err != nil {
		evType = EventTypeFunctionFailed
		msg = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.publish(ctx, &Event{RunID: runID, Function: fr.Function.ID.String(), Type: evType, Message: msg})
}

// publish sends an event synchronously; the publisher owns any buffering.
func (e *Engine) publish(ctx context.Context, event *Event) {
	if e.cfg.Publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = event.Type.Severity()
	}
	if err := e.cfg.Publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish event")
	}
}

// cancelRemaining marks every step without a result as cancelled.
func cancelRemaining(fr *FunctionReport, reason string) {
	for _, step := range Steps {
		if _, ok := fr.Steps[step]; !ok {
			fr.Steps[step] = &StepResult{
				Status: StepStatusCancelled,
				Reason: reason,
				Error:  NewHydrationError(reason, context.Canceled).WithFunction(fr.Function.ID).WithCode(ErrCodeCancelled),
			}
		}
	}
}

func summarize(functions []*FunctionReport) RunSummary {
	summary := RunSummary{Total: len(functions)}
	for _, fr := range functions {
		switch {
		case fr.Failed():
			summary.Failed++
		case isCancelled(fr):
			summary.Cancelled++
		default:
			summary.Succeeded++
		}
	}
	return summary
}

func isCancelled(fr *FunctionReport) bool {
	for _, res := range fr.Steps {
		if res != nil && res.Status == StepStatusCancelled {
			return true
		}
	}
	return false
}

func runStatus(s RunSummary) RunStatus {
	switch {
	case s.Cancelled > 0:
		return RunStatusCancelled
	case s.Failed == 0:
		return RunStatusSucceeded
	case s.Succeeded > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// Cancelled reports whether err stems from context cancellation.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
