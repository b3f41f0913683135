package stores

import (
	"context"
	"time"

	"github.com/lpsinger/hydrate/pkg/engine"
)

// FunctionStatus is the overall outcome of one function in a recorded run.
type FunctionStatus string

const (
	FunctionStatusSucceeded FunctionStatus = "succeeded"
	FunctionStatusFailed    FunctionStatus = "failed"
	FunctionStatusCancelled FunctionStatus = "cancelled"
)

// Run is the ledger row for one hydration run.
type Run struct {
	ID          string            `json:"id"`
	Root        string            `json:"root"`
	Status      engine.RunStatus  `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Duration    time.Duration     `json:"duration"`
	Summary     engine.RunSummary `json:"summary"`
}

// FunctionResult is the ledger row for one function in a run.
type FunctionResult struct {
	RunID    string         `json:"run_id"`
	Function string         `json:"function"`
	Runtime  engine.Runtime `json:"runtime"`
	Status   FunctionStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
}

// StoredEvent is a timeline event as persisted.
type StoredEvent struct {
	Seq int64 `json:"seq"`
	engine.Event
}

// Store defines the interface for the run ledger.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Run operations
	RecordRun(ctx context.Context, report *engine.RunReport) error
	GetRun(ctx context.Context, id string) (*engine.RunReport, error)
	ListRuns(ctx context.Context, root string, limit, offset int) ([]*Run, error)
	ListFunctionResults(ctx context.Context, runID string) ([]*FunctionResult, error)
	PruneRuns(ctx context.Context, root string, keep int) (int64, error)

	// Retry support
	LastFailed(ctx context.Context, root string) ([]engine.FunctionID, error)

	// Event operations
	AppendEvent(ctx context.Context, event *engine.Event) error
	GetEvents(ctx context.Context, runID string) ([]*StoredEvent, error)
}

// functionStatus folds a function report into a single outcome.
func functionStatus(fr *engine.FunctionReport) FunctionStatus {
	if fr.Failed() {
		return FunctionStatusFailed
	}
	for _, res := range fr.Steps {
		if res != nil && res.Status == engine.StepStatusCancelled {
			return FunctionStatusCancelled
		}
	}
	return FunctionStatusSucceeded
}
