package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TriggerType identifies the event source that invokes a function.
type TriggerType string

const (
	// TriggerHTTP is an HTTP route handler.
	TriggerHTTP TriggerType = "http"

	// TriggerEvent is a pub/sub event subscriber.
	TriggerEvent TriggerType = "event"

	// TriggerQueue is a queue consumer.
	TriggerQueue TriggerType = "queue"

	// TriggerScheduled is a scheduled (cron/rate) job.
	TriggerScheduled TriggerType = "scheduled"

	// TriggerTableStream is a table stream consumer.
	TriggerTableStream TriggerType = "tableStream"

	// TriggerCustomPath is a handler whose source lives at an explicit path.
	TriggerCustomPath TriggerType = "customPath"
)

// TriggerTypes lists all trigger types in resolution order.
var TriggerTypes = []TriggerType{
	TriggerHTTP,
	TriggerEvent,
	TriggerQueue,
	TriggerScheduled,
	TriggerTableStream,
	TriggerCustomPath,
}

// Validate checks if the trigger type is valid.
func (t TriggerType) Validate() error {
	for _, known := range TriggerTypes {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("invalid trigger type: %s", t)
}

// HasMethod reports whether functions of this trigger type carry an HTTP method.
func (t TriggerType) HasMethod() bool {
	return t == TriggerHTTP || t == TriggerCustomPath
}

// Method is an HTTP method on an http or customPath function.
type Method string

const (
	MethodGet     Method = "get"
	MethodPost    Method = "post"
	MethodPut     Method = "put"
	MethodPatch   Method = "patch"
	MethodDelete  Method = "delete"
	MethodHead    Method = "head"
	MethodOptions Method = "options"
	MethodAny     Method = "any"
)

// ParseMethod parses an HTTP method, case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch,
		MethodDelete, MethodHead, MethodOptions, MethodAny:
		return m, nil
	default:
		return "", fmt.Errorf("invalid http method: %q", s)
	}
}

// IsRead reports whether the method produces a read-style response.
func (m Method) IsRead() bool {
	return m == MethodGet || m == MethodAny
}

// FunctionID is the identity of a function: unique per trigger type.
type FunctionID struct {
	// Trigger is the trigger type of the function.
	Trigger TriggerType `json:"trigger"`

	// Name is the function name, unique within its trigger type.
	Name string `json:"name"`
}

// String returns the canonical "trigger:name" form.
func (id FunctionID) String() string {
	return string(id.Trigger) + ":" + id.Name
}

// MarshalText implements encoding.TextMarshaler.
func (id FunctionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *FunctionID) UnmarshalText(text []byte) error {
	parsed, err := ParseFunctionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseFunctionID parses "trigger:name" or the HTTP route form "get /path".
func ParseFunctionID(s string) (FunctionID, error) {
	s = strings.TrimSpace(s)
	if method, path, ok := strings.Cut(s, " "); ok {
		m, err := ParseMethod(method)
		if err != nil {
			return FunctionID{}, err
		}
		name, err := RouteName(m, strings.TrimSpace(path))
		if err != nil {
			return FunctionID{}, err
		}
		return FunctionID{Trigger: TriggerHTTP, Name: name}, nil
	}

	trigger, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return FunctionID{}, fmt.Errorf("invalid function id %q: want trigger:name or \"method /path\"", s)
	}
	t := TriggerType(trigger)
	if err := t.Validate(); err != nil {
		return FunctionID{}, err
	}
	return FunctionID{Trigger: t, Name: name}, nil
}

// RouteName converts an HTTP method and route path into a function name.
// "get /" becomes "get-index", "get /notes/:id" becomes "get-notes-000id" and
// "any /files/*" becomes "any-files-catchall".
func RouteName(method Method, path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("route path must start with '/': %q", path)
	}
	if path == "/" {
		return string(method) + "-index", nil
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		switch {
		case seg == "" && i == len(segments)-1:
			continue // trailing slash
		case seg == "":
			return "", fmt.Errorf("route path has an empty segment: %q", path)
		case seg == "*":
			if i != len(segments)-1 {
				return "", fmt.Errorf("catchall must be the last segment: %q", path)
			}
			parts = append(parts, "catchall")
		case strings.HasPrefix(seg, ":"):
			param := strings.TrimPrefix(seg, ":")
			if !ValidName(param) {
				return "", fmt.Errorf("invalid path parameter %q in %q", seg, path)
			}
			parts = append(parts, "000"+param)
		default:
			if !ValidName(seg) {
				return "", fmt.Errorf("invalid path segment %q in %q", seg, path)
			}
			parts = append(parts, seg)
		}
	}

	return string(method) + "-" + strings.Join(parts, "-"), nil
}

// ValidName reports whether seg is usable as a function name or path segment.
func ValidName(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// FunctionDescriptor describes one deployable function.
type FunctionDescriptor struct {
	// ID is the function identity.
	ID FunctionID `json:"id"`

	// Runtime is the runtime. Empty until classified if not declared.
	Runtime Runtime `json:"runtime,omitempty"`

	// Method is the HTTP method, set only for http and customPath triggers.
	Method Method `json:"method,omitempty"`

	// Src is the function source directory, relative to the project root.
	Src string `json:"src"`
}

// Path returns the function directory under the given project root.
func (f FunctionDescriptor) Path(root string) string {
	return filepath.Join(root, filepath.FromSlash(f.Src))
}

// RuntimeGroup maps each runtime to its functions in declaration order.
type RuntimeGroup map[Runtime][]FunctionDescriptor

// Runtimes returns the runtimes present in the group in variant order.
func (g RuntimeGroup) Runtimes() []Runtime {
	out := make([]Runtime, 0, len(g))
	for _, r := range Runtimes {
		if len(g[r]) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the total number of functions across all runtimes.
func (g RuntimeGroup) Len() int {
	n := 0
	for _, fns := range g {
		n += len(fns)
	}
	return n
}

// Step names a per-function pipeline stage.
type Step string

const (
	StepInstall Step = "install"
	StepShared  Step = "shared"
	StepViews   Step = "views"
	StepStatic  Step = "static"
)

// Steps lists the per-function steps in pipeline order.
var Steps = []Step{StepInstall, StepShared, StepViews, StepStatic}

// StepResult is the outcome of one step for one function.
type StepResult struct {
	// Status is the step outcome.
	Status StepStatus `json:"status"`

	// Reason explains a skip or cancellation.
	Reason string `json:"reason,omitempty"`

	// Error is the failure, if any.
	Error *Error `json:"error,omitempty"`

	// RolledBack is set when a succeeded step was undone because a sibling failed.
	RolledBack bool `json:"rolled_back,omitempty"`

	// Duration is the time spent in the step.
	Duration time.Duration `json:"duration"`
}

// FunctionReport is the per-function outcome of a run.
type FunctionReport struct {
	// Function is the classified descriptor.
	Function FunctionDescriptor `json:"function"`

	// Steps maps each step to its result.
	Steps map[Step]*StepResult `json:"steps"`
}

// Failed reports whether any step failed.
func (r *FunctionReport) Failed() bool {
	for _, res := range r.Steps {
		if res != nil && res.Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// Status returns the result for a step, or a pending result if unset.
func (r *FunctionReport) Status(step Step) StepStatus {
	if res, ok := r.Steps[step]; ok && res != nil {
		return res.Status
	}
	return StepStatusPending
}

// Err returns the first step error in pipeline order.
func (r *FunctionReport) Err() error {
	for _, step := range Steps {
		if res, ok := r.Steps[step]; ok && res != nil && res.Error != nil {
			return res.Error
		}
	}
	return nil
}

// RunReport is the outcome of a hydration run.
type RunReport struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// Root is the project root the run hydrated.
	Root string `json:"root"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Functions holds one report per function, in declaration order.
	Functions []*FunctionReport `json:"functions"`

	// Summary provides statistics about the run.
	Summary RunSummary `json:"summary"`
}

// Function returns the report for the given function, or nil.
func (r *RunReport) Function(id FunctionID) *FunctionReport {
	for _, fr := range r.Functions {
		if fr.Function.ID == id {
			return fr
		}
	}
	return nil
}

// RunSummary counts functions by outcome.
type RunSummary struct {
	// Total is the number of functions in the run.
	Total int `json:"total"`

	// Succeeded counts functions with no failed or cancelled step.
	Succeeded int `json:"succeeded"`

	// Failed counts functions with at least one failed step.
	Failed int `json:"failed"`

	// Cancelled counts functions that did not run to completion.
	Cancelled int `json:"cancelled"`
}
