// Package errkind classifies errors into five kinds: config, submission,
// runtime, reconciliation, and consistency. Each carries the offending
// component and input so a CLI command can report "what failed and where"
// without re-deriving it from a bare error string.
package errkind

import "fmt"

// Kind is one of the classified error categories.
type Kind string

const (
	Config         Kind = "config"
	Submission     Kind = "submission"
	Runtime        Kind = "runtime"
	Reconciliation Kind = "reconciliation"
	Consistency    Kind = "consistency"
)

// Error is a classified error identifying the component and input that
// produced it, alongside the underlying cause.
type Error struct {
	Kind      Kind
	Component string
	Input     string
	Err       error
}

func (e *Error) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Component, e.Err)
	}
	return fmt.Sprintf("%s error in %s (%s): %v", e.Kind, e.Component, e.Input, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, component, input, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Input: input, Err: fmt.Errorf(format, args...)}
}

// Configf builds a config error: missing required keys,
// unparsable files, placeholder values, split-key validation.
func Configf(component, input, format string, args ...any) *Error {
	return newf(Config, component, input, format, args...)
}

// Submissionf builds a submission error: the scheduler rejected the job.
func Submissionf(component, input, format string, args ...any) *Error {
	return newf(Submission, component, input, format, args...)
}

// Runtimef builds a runtime error: user code raised at execution time.
func Runtimef(component, input, format string, args ...any) *Error {
	return newf(Runtime, component, input, format, args...)
}

// Reconciliationf builds a reconciliation error: the scheduler reports a
// job gone without a recorded end.
func Reconciliationf(component, input, format string, args ...any) *Error {
	return newf(Reconciliation, component, input, format, args...)
}

// Consistencyf builds a consistency error: duplicate tags, config-hash
// collisions against a terminal successful task.
func Consistencyf(component, input, format string, args ...any) *Error {
	return newf(Consistency, component, input, format, args...)
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if k, ok := err.(*Error); ok {
			e = k
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
