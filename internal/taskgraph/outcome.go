package taskgraph

import (
	"context"
	stderrors "errors"
)

// Outcome classifies how a task invocation ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeTolerated marks a failure that was reported but deliberately not
	// propagated (development-mode compile errors).
	OutcomeTolerated Outcome = "tolerated"
	OutcomeCanceled  Outcome = "canceled"
)

// ToleratedError wraps a failure that must be reported but not propagated.
type ToleratedError struct {
	Err error
}

func (e *ToleratedError) Error() string { return "tolerated: " + e.Err.Error() }
func (e *ToleratedError) Unwrap() error { return e.Err }

// Tolerate marks err as non-fatal for the enclosing composition. nil stays nil.
func Tolerate(err error) error {
	if err == nil {
		return nil
	}
	return &ToleratedError{Err: err}
}

// IsTolerated reports whether err carries a tolerated failure.
func IsTolerated(err error) bool {
	var te *ToleratedError
	return stderrors.As(err, &te)
}

// classify maps a body's return value to an outcome and the error that should
// propagate to the enclosing node.
func classify(err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeSucceeded, nil
	case IsTolerated(err):
		return OutcomeTolerated, nil
	case stderrors.Is(err, context.Canceled):
		return OutcomeCanceled, err
	default:
		return OutcomeFailed, err
	}
}
