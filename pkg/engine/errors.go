package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error by the stage that produced it.
type ErrorKind string

const (
	// ErrorKindManifest indicates a malformed or duplicate declaration.
	// Fatal: the run aborts before any hydration begins.
	ErrorKindManifest ErrorKind = "manifest"

	// ErrorKindInstall indicates the dependency installer failed for one function.
	// Recoverable by retrying that function alone.
	ErrorKindInstall ErrorKind = "install"

	// ErrorKindHydration indicates copying a shared or views tree failed.
	// Recoverable by retry; no partial artifact is left behind.
	ErrorKindHydration ErrorKind = "hydration"

	// ErrorKindDerivation indicates the static manifest could not be emitted.
	// The owning shared artifact is rolled back.
	ErrorKindDerivation ErrorKind = "derivation"
)

// Error represents a classified hydration error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Function is the identity of the function that failed, if applicable.
	Function string `json:"function,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Function != "" && e.Op != "" {
		msg = fmt.Sprintf("%s (function=%s, op=%s)", msg, e.Function, e.Op)
	} else if e.Function != "" {
		msg = fmt.Sprintf("%s (function=%s)", msg, e.Function)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// Sentinels for errors.Is.
var (
	ErrManifest   = &Error{Kind: ErrorKindManifest}
	ErrInstall    = &Error{Kind: ErrorKindInstall}
	ErrHydration  = &Error{Kind: ErrorKindHydration}
	ErrDerivation = &Error{Kind: ErrorKindDerivation}
)

// NewManifestError creates a new manifest error.
func NewManifestError(message string, err error) *Error {
	return &Error{Kind: ErrorKindManifest, Message: message, Err: err}
}

// NewInstallError creates a new install error.
func NewInstallError(message string, err error) *Error {
	return &Error{Kind: ErrorKindInstall, Message: message, Err: err}
}

// NewHydrationError creates a new hydration error.
func NewHydrationError(message string, err error) *Error {
	return &Error{Kind: ErrorKindHydration, Message: message, Err: err}
}

// NewDerivationError creates a new derivation error.
func NewDerivationError(message string, err error) *Error {
	return &Error{Kind: ErrorKindDerivation, Message: message, Err: err}
}

// WithFunction adds function identity to an error.
func (e *Error) WithFunction(id FunctionID) *Error {
	e.Function = id.String()
	return e
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsError returns err as an *Error, wrapping unclassified errors with the fallback kind.
func AsError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: fallback, Message: string(fallback) + " failed", Err: err}
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsManifestError returns true if the error is a manifest error.
func IsManifestError(err error) bool { return isKind(err, ErrorKindManifest) }

// IsInstallError returns true if the error is an install error.
func IsInstallError(err error) bool { return isKind(err, ErrorKindInstall) }

// IsHydrationError returns true if the error is a hydration error.
func IsHydrationError(err error) bool { return isKind(err, ErrorKindHydration) }

// IsDerivationError returns true if the error is a derivation error.
func IsDerivationError(err error) bool { return isKind(err, ErrorKindDerivation) }

// IsRetryable returns true if re-running the failed function can succeed.
// Per-function errors are retryable; manifest errors are not.
func IsRetryable(err error) bool {
	return IsInstallError(err) || IsHydrationError(err) || IsDerivationError(err)
}

// Common error codes.
const (
	ErrCodeDuplicate        = "DUPLICATE"
	ErrCodeMalformed        = "MALFORMED"
	ErrCodeUnknownRuntime   = "UNKNOWN_RUNTIME"
	ErrCodeUnknownFunction  = "UNKNOWN_FUNCTION"
	ErrCodeCollaborator     = "COLLABORATOR_FAILED"
	ErrCodeCopy             = "COPY_FAILED"
	ErrCodeMarker           = "MARKER_FAILED"
	ErrCodeCommit           = "COMMIT_FAILED"
	ErrCodeInvalidSource    = "INVALID_SOURCE"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
	ErrCodeSourceInstall    = "SOURCE_INSTALL_FAILED"
)
