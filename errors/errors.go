package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad       Phase = "load"       // module loading and validation
	PhaseRun        Phase = "run"        // stepping and execution control
	PhaseInspect    Phase = "inspect"    // state inspection
	PhaseBreakpoint Phase = "breakpoint" // breakpoint table operations
	PhaseImport     Phase = "import"     // import call bridge
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidState Kind = "invalid_state"
	KindNotFound     Kind = "not_found"
	KindTrap         Kind = "trap"
	KindLoadFailure  Kind = "load_failure"
	KindOutOfRange   Kind = "out_of_range"
	KindInvalidValue Kind = "invalid_value"
)

// Error is the structured error type used throughout the debugger
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidState creates an invalid state error: an operation was
// attempted in a run state that forbids it.
func InvalidState(phase Phase, msg string, args ...any) *Error {
	return New(phase, KindInvalidState).Detail(msg, args...).Build()
}

// NotFound creates a not found error for breakpoint or frame indices.
func NotFound(phase Phase, msg string, args ...any) *Error {
	return New(phase, KindNotFound).Detail(msg, args...).Build()
}

// Trap creates an interpreter trap error. Traps are fatal to the
// current run.
func Trap(msg string, args ...any) *Error {
	return New(PhaseRun, KindTrap).Detail(msg, args...).Build()
}

// Load creates a load failure error wrapping the runtime's rejection.
func Load(detail string, cause error) *Error {
	return New(PhaseLoad, KindLoadFailure).Detail(detail).Cause(cause).Build()
}

// OutOfRange creates an out of range error
func OutOfRange(phase Phase, what string, index, length int) *Error {
	return New(phase, KindOutOfRange).
		Detail("%s index %d out of range (length %d)", what, index, length).
		Build()
}

// IsTrap reports whether err is a trap error.
func IsTrap(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Kind == KindTrap
	}
	return false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if e, ok := err.(*Error); ok {
		return e.Kind == kind
	}
	return false
}
