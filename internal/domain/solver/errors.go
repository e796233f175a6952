package solver

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a strategy did not produce an accepted Solution.
type ErrorKind string

const (
	KindUnavailable   ErrorKind = "unavailable"
	KindTimeout       ErrorKind = "timeout"
	KindLowConfidence ErrorKind = "low_confidence"
	KindMalformed     ErrorKind = "malformed"
)

// StrategyError is the only failure a strategy reports to the Coordinator.
// All kinds are recoverable: the Coordinator moves on to the next strategy.
type StrategyError struct {
	Kind     ErrorKind
	Strategy string
	// Score is set for KindLowConfidence.
	Score int
	Err   error
}

func (e *StrategyError) Error() string {
	prefix := string(e.Kind)
	if e.Strategy != "" {
		prefix = e.Strategy + ": " + prefix
	}
	switch {
	case e.Kind == KindLowConfidence:
		return fmt.Sprintf("%s (score %d)", prefix, e.Score)
	case e.Err != nil:
		return prefix + ": " + e.Err.Error()
	default:
		return prefix
	}
}

func (e *StrategyError) Unwrap() error { return e.Err }

// Unavailable reports that a strategy's dependency could not be reached.
func Unavailable(err error) *StrategyError {
	return &StrategyError{Kind: KindUnavailable, Err: err}
}

// Timeout reports that a strategy exceeded its time budget.
func Timeout(err error) *StrategyError {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return &StrategyError{Kind: KindTimeout, Err: err}
}

// LowConfidence reports an answer whose confidence is below the acceptance bar.
func LowConfidence(score int) *StrategyError {
	return &StrategyError{Kind: KindLowConfidence, Score: score}
}

// Malformed reports a response that could not be turned into a valid Solution.
func Malformed(err error) *StrategyError {
	return &StrategyError{Kind: KindMalformed, Err: err}
}

// Classify converts any strategy error into a *StrategyError tagged with the strategy name.
// Plain context deadline errors become Timeout; anything unrecognised is Unavailable.
func Classify(strategy string, err error) *StrategyError {
	if err == nil {
		return nil
	}
	var se *StrategyError
	if errors.As(err, &se) {
		out := *se
		if out.Strategy == "" {
			out.Strategy = strategy
		}
		return &out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out := Timeout(err)
		out.Strategy = strategy
		return out
	}
	out := Unavailable(err)
	out.Strategy = strategy
	return out
}

// KindOf returns the ErrorKind carried by err, or "" when err is not a strategy failure.
func KindOf(err error) ErrorKind {
	var se *StrategyError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
