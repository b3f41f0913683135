package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a hydration run.
type RunStatus string

const (
	// RunStatusPending indicates the run has not started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every function hydrated without failure.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates every function failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was aborted before finishing.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusPartial indicates some functions failed and others succeeded.
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusCancelled || s == RunStatusPartial
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// StepStatus represents the outcome of one pipeline step for one function.
type StepStatus string

const (
	// StepStatusPending indicates the step has not run.
	StepStatusPending StepStatus = "pending"

	// StepStatusSucceeded indicates the step completed and its artifact exists.
	StepStatusSucceeded StepStatus = "succeeded"

	// StepStatusFailed indicates the step failed and left no artifact.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped indicates the step was intentionally not run
	// (disabled, ineligible, out of pragma scope, or its prerequisite failed).
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusCancelled indicates the run was aborted before the step finished.
	StepStatusCancelled StepStatus = "cancelled"
)

// IsTerminal returns true if the step status represents a final state.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSucceeded || s == StepStatusFailed ||
		s == StepStatusSkipped || s == StepStatusCancelled
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusPending, StepStatusSucceeded, StepStatusFailed,
		StepStatusSkipped, StepStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// EventType represents the type of event in the run timeline.
type EventType string

const (
	EventTypeRunStarted        EventType = "run_started"
	EventTypeRunCompleted      EventType = "run_completed"
	EventTypeFunctionStarted   EventType = "function_started"
	EventTypeFunctionCompleted EventType = "function_completed"
	EventTypeFunctionFailed    EventType = "function_failed"
	EventTypeStepCompleted     EventType = "step_completed"
	EventTypeWarning           EventType = "warning"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeFunctionFailed:
		return "error"
	case EventTypeWarning:
		return "warning"
	default:
		return "info"
	}
}
