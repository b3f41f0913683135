package engine

import (
	"context"
	"time"
)

// Installer populates a function's dependency directory.
// Implementations must be idempotent and safe to call repeatedly, and must
// only write inside functionPath.
type Installer interface {
	// Install installs dependencies for fn, whose directory is functionPath.
	Install(ctx context.Context, fn FunctionDescriptor, functionPath string) error
}

// InstallerFunc adapts a function to the Installer interface.
type InstallerFunc func(ctx context.Context, fn FunctionDescriptor, functionPath string) error

// Install calls f.
func (f InstallerFunc) Install(ctx context.Context, fn FunctionDescriptor, functionPath string) error {
	return f(ctx, fn, functionPath)
}

// Outcome reports what a Hydrator did for one function.
type Outcome struct {
	// Applied is true when the artifact was written.
	Applied bool

	// Reason explains why the artifact was not written.
	Reason string
}

// Hydrator places one kind of hydrated code into function directories.
type Hydrator interface {
	// Step returns the pipeline step this hydrator implements.
	Step() Step

	// Hydrate writes the artifact for fn, or removes a stale one when fn is
	// out of scope. On error no artifact of this kind is left for fn.
	Hydrate(ctx context.Context, fn FunctionDescriptor, functionPath string) (*Outcome, error)

	// Prune removes this hydrator's artifact for fn, if present.
	Prune(fn FunctionDescriptor, functionPath string) error
}

// SourceInstaller installs the dependencies declared by a project source
// tree, such as the shared or views code, in place.
type SourceInstaller interface {
	InstallSource(ctx context.Context, dir string) error
}

// Preparer is implemented by hydrators that need work on their source tree
// once per run, before any function is hydrated. A failed preparation is
// reported by Hydrate for every in-scope function.
type Preparer interface {
	Prepare(ctx context.Context, opts RunOptions) error
}

// Event represents a timeline event during a run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID is the ID of the run this event belongs to.
	RunID string `json:"run_id"`

	// Function is the function identity, if applicable.
	Function string `json:"function,omitempty"`

	// Step is the pipeline step, if applicable.
	Step Step `json:"step,omitempty"`

	// Status is the step status for step events.
	Status StepStatus `json:"status,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the log level (info, warning, error).
	Level string `json:"level"`
}

// EventPublisher receives run timeline events.
type EventPublisher interface {
	// Publish publishes an event. Errors are logged, never fatal to the run.
	Publish(ctx context.Context, event *Event) error
}

// RunRecorder persists completed run reports.
type RunRecorder interface {
	// RecordRun stores the final report of a run.
	RecordRun(ctx context.Context, report *RunReport) error
}

// MetricsRecorder receives run and step measurements.
type MetricsRecorder interface {
	RecordRunStarted()
	RecordRunCompleted(status RunStatus, duration time.Duration)
	RecordStep(step Step, status StepStatus, runtime Runtime, duration time.Duration)
}
