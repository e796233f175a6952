package solver

import (
	"time"

	"go.uber.org/zap"
)

// Attempt describes one strategy invocation inside a Resolve call.
type Attempt struct {
	QuestionID string
	Language   Language
	Strategy   string
	Position   int
	Accepted   bool
	Confidence int
	// Err is nil when Accepted or Canceled.
	Err      *StrategyError
	Canceled bool
	Elapsed  time.Duration
}

// Kind returns the failure kind of the attempt, or "" when it was accepted or canceled.
func (a Attempt) Kind() ErrorKind {
	if a.Err == nil {
		return ""
	}
	return a.Err.Kind
}

// Outcome summarises a whole Resolve call.
type Outcome struct {
	QuestionID string
	Language   Language
	// Strategy is the accepted strategy name, empty on fallback.
	Strategy   string
	Source     Source
	Confidence int
	Fallback   bool
	Canceled   bool
	Attempts   int
	Elapsed    time.Duration
}

// Observer receives solver events. Implementations must be safe for concurrent use:
// in race mode losing attempts may be reported after Resolve has returned.
type Observer interface {
	ObserveAttempt(Attempt)
	ObserveOutcome(Outcome)
}

// Observers fans events out to every member.
type Observers []Observer

func (o Observers) ObserveAttempt(a Attempt) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveAttempt(a)
		}
	}
}

func (o Observers) ObserveOutcome(out Outcome) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveOutcome(out)
		}
	}
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ObserveAttempt(Attempt) {}
func (NopObserver) ObserveOutcome(Outcome) {}

// LogObserver writes solver events to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver returns an Observer logging under the "solver" name.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger.Named("solver")}
}

func (l *LogObserver) ObserveAttempt(a Attempt) {
	fields := []zap.Field{
		zap.String("question_id", a.QuestionID),
		zap.String("strategy", a.Strategy),
		zap.Int("position", a.Position),
		zap.Duration("elapsed", a.Elapsed),
	}
	switch {
	case a.Accepted:
		l.logger.Debug("strategy accepted", append(fields, zap.Int("confidence", a.Confidence))...)
	case a.Canceled:
		l.logger.Debug("strategy canceled", fields...)
	default:
		l.logger.Warn("strategy failed",
			append(fields, zap.String("kind", string(a.Kind())), zap.Error(a.Err))...)
	}
}

func (l *LogObserver) ObserveOutcome(o Outcome) {
	fields := []zap.Field{
		zap.String("question_id", o.QuestionID),
		zap.String("language", string(o.Language)),
		zap.String("source", string(o.Source)),
		zap.Int("confidence", o.Confidence),
		zap.Int("attempts", o.Attempts),
		zap.Duration("elapsed", o.Elapsed),
	}
	switch {
	case o.Canceled:
		l.logger.Info("resolution canceled", fields...)
	case o.Fallback:
		l.logger.Info("all strategies exhausted, returning fallback", fields...)
	default:
		l.logger.Debug("question resolved", append(fields, zap.String("strategy", o.Strategy))...)
	}
}
