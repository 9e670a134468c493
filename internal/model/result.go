package model

import "fmt"

// ResultKind is the closed set of outcomes a stage invocation can end in.
type ResultKind string

const (
	// Success means the stage did its work, or had nothing to do.
	Success ResultKind = "success"
	// UserRejected means the input was refused; retrying the same input will
	// be refused again.
	UserRejected ResultKind = "user_rejected"
	// RetryableFailure means a dependency failed transiently and the same
	// invocation may succeed later.
	RetryableFailure ResultKind = "retryable_failure"
	// FatalFailure means the invocation cannot succeed; it is reported and not
	// retried.
	FatalFailure ResultKind = "fatal_failure"
)

// Result is returned by every stage handler.
type Result struct {
	Kind    ResultKind
	Message string
	Err     error
}

// Succeeded builds a Success result.
func Succeeded(format string, args ...any) Result {
	return Result{Kind: Success, Message: fmt.Sprintf(format, args...)}
}

// Rejected builds a UserRejected result.
func Rejected(err error) Result {
	return Result{Kind: UserRejected, Message: err.Error(), Err: err}
}

// Retryable builds a RetryableFailure result.
func Retryable(err error) Result {
	return Result{Kind: RetryableFailure, Message: err.Error(), Err: err}
}

// Fatal builds a FatalFailure result.
func Fatal(err error) Result {
	return Result{Kind: FatalFailure, Message: err.Error(), Err: err}
}

// Failed reports whether the result is one of the failure kinds.
func (r Result) Failed() bool {
	return r.Kind == RetryableFailure || r.Kind == FatalFailure
}

func (r Result) String() string {
	if r.Message == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}
