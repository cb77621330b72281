package render

import (
	"errors"
	"strings"
)

// Kind categorizes a run failure
type Kind string

const (
	KindPrecondition    Kind = "precondition"     // Missing comp/layer/effect, empty selection, bad range or folder
	KindEngineRejection Kind = "engine_rejection" // The engine refused a request or did not answer
	KindIOFailure       Kind = "io_failure"       // Local filesystem failure
)

// RunError is the single error type returned by the orchestrator.
// Every RunError is terminal for the run.
type RunError struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "validate.control_comp"
	Message string // Human-readable cause
	Err     error  // Underlying error, may be nil
}

// Error implements the error interface
func (e *RunError) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *RunError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a RunError of the same kind
func (e *RunError) Is(target error) bool {
	if t, ok := target.(*RunError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks against a failure kind
var (
	ErrPrecondition    = &RunError{Kind: KindPrecondition}
	ErrEngineRejection = &RunError{Kind: KindEngineRejection}
	ErrIOFailure       = &RunError{Kind: KindIOFailure}
)

func precondition(op, message string, err error) *RunError {
	return &RunError{Kind: KindPrecondition, Op: op, Message: message, Err: err}
}

func engineRejection(op, message string, err error) *RunError {
	return &RunError{Kind: KindEngineRejection, Op: op, Message: message, Err: err}
}

func ioFailure(op, message string, err error) *RunError {
	return &RunError{Kind: KindIOFailure, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first RunError in err's chain
func KindOf(err error) (Kind, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}
