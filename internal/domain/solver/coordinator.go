package solver

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how the Coordinator schedules strategies.
type Mode string

const (
	// ModeSequential tries strategies one at a time in priority order.
	ModeSequential Mode = "sequential"
	// ModeRace runs the first RaceWidth strategies concurrently and accepts the first that passes.
	ModeRace Mode = "race"
)

// Default tuning values.
const (
	DefaultThreshold          = 70
	DefaultPerStrategyTimeout = 8 * time.Second
	DefaultRaceWidth          = 2
)

// Config tunes a Coordinator.
type Config struct {
	// Threshold is the minimum confidence at which a Solution is accepted.
	Threshold          int
	PerStrategyTimeout time.Duration
	Mode               Mode
	RaceWidth          int
	Fallback           FallbackTable
}

// DefaultConfig returns sequential resolution with threshold 70 and an 8s budget per strategy.
func DefaultConfig() Config {
	return Config{
		Threshold:          DefaultThreshold,
		PerStrategyTimeout: DefaultPerStrategyTimeout,
		Mode:               ModeSequential,
		RaceWidth:          DefaultRaceWidth,
		Fallback:           DefaultFallbackTable(),
	}
}

func (c Config) normalized() Config {
	if c.Threshold < MinConfidence {
		c.Threshold = MinConfidence
	}
	if c.Threshold > MaxConfidence {
		c.Threshold = MaxConfidence
	}
	if c.PerStrategyTimeout <= 0 {
		c.PerStrategyTimeout = DefaultPerStrategyTimeout
	}
	if c.Mode != ModeRace {
		c.Mode = ModeSequential
	}
	if c.RaceWidth < 2 {
		c.RaceWidth = DefaultRaceWidth
	}
	if c.Fallback == nil {
		c.Fallback = DefaultFallbackTable()
	}
	return c
}

// Coordinator resolves questions against a fixed, ordered list of strategies.
// It holds no per-call state; Resolve may be called concurrently.
type Coordinator struct {
	strategies []Strategy
	cfg        Config
	obs        Observer
}

// NewCoordinator builds a Coordinator. A nil observer discards events.
func NewCoordinator(strategies []Strategy, cfg Config, obs Observer) *Coordinator {
	ordered := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Coordinator{strategies: ordered, cfg: cfg.normalized(), obs: obs}
}

// Resolve is the functional form of the coordinator: one call with explicit strategies,
// acceptance threshold and per-strategy timeout.
func Resolve(ctx context.Context, q Question, strategies []Strategy, threshold int, perStrategyTimeout time.Duration) (Solution, error) {
	cfg := DefaultConfig()
	cfg.Threshold = threshold
	cfg.PerStrategyTimeout = perStrategyTimeout
	return NewCoordinator(strategies, cfg, nil).Resolve(ctx, q)
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Strategies returns the strategy names in priority order.
func (c *Coordinator) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first Solution whose confidence meets the threshold, or the
// fallback Solution when every strategy fails. The returned Solution always has at
// least one step. The error is non-nil only when ctx is canceled, in which case no
// further strategies are invoked and the fallback Solution is returned with ctx.Err().
func (c *Coordinator) Resolve(ctx context.Context, q Question) (Solution, error) {
	q.Language = q.Language.Normalize()
	run := resolution{started: time.Now(), question: q}

	if err := ctx.Err(); err != nil {
		return c.finish(&run, nil, err), err
	}

	remaining := c.strategies
	if c.cfg.Mode == ModeRace && len(remaining) > 1 {
		width := min(c.cfg.RaceWidth, len(remaining))
		sol, name, err := c.race(ctx, q, remaining[:width])
		run.attempts += width
		if sol != nil {
			run.strategy = name
			return c.finish(&run, sol, nil), nil
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return c.finish(&run, nil, err), err
		}
		remaining = remaining[width:]
	}

	offset := len(c.strategies) - len(remaining)
	for i, s := range remaining {
		run.attempts++
		sol, err := c.attempt(ctx, q, s, offset+i)
		if err == nil {
			run.strategy = s.Name()
			return c.finish(&run, &sol, nil), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.finish(&run, nil, ctxErr), ctxErr
		}
	}
	return c.finish(&run, nil, nil), nil
}

type resolution struct {
	started  time.Time
	question Question
	strategy string
	attempts int
}

func (c *Coordinator) finish(run *resolution, accepted *Solution, ctxErr error) Solution {
	out := Outcome{
		QuestionID: run.question.ID,
		Language:   run.question.Language,
		Attempts:   run.attempts,
		Canceled:   ctxErr != nil,
		Elapsed:    time.Since(run.started),
	}
	var sol Solution
	if accepted != nil {
		sol = *accepted
		out.Strategy = run.strategy
	} else {
		sol = c.cfg.Fallback.Solution(run.question.Language)
		out.Fallback = true
	}
	out.Source = sol.Source
	out.Confidence = sol.Confidence
	c.obs.ObserveOutcome(out)
	return sol
}

type strategyResult struct {
	sol *Solution
	err error
}

// attempt runs one strategy under the per-strategy deadline. It returns the accepted
// Solution, or the classified failure. The coordinator stops waiting at the deadline
// even if the strategy ignores its context; the late result is discarded.
func (c *Coordinator) attempt(ctx context.Context, q Question, s Strategy, position int) (Solution, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.PerStrategyTimeout)
	defer cancel()

	name := s.Name()
	started := time.Now()
	results := make(chan strategyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- strategyResult{err: Malformed(fmt.Errorf("strategy panicked: %v", r))}
			}
		}()
		sol, err := s.Solve(actx, q)
		results <- strategyResult{sol: sol, err: err}
	}()

	var res strategyResult
	select {
	case res = <-results:
	case <-actx.Done():
		res = strategyResult{err: actx.Err()}
	}

	a := Attempt{
		QuestionID: q.ID,
		Language:   q.Language,
		Strategy:   name,
		Position:   position,
		Elapsed:    time.Since(started),
	}

	if res.err != nil && ctx.Err() != nil {
		a.Canceled = true
		c.obs.ObserveAttempt(a)
		return Solution{}, ctx.Err()
	}

	sol, serr := c.judge(name, res)
	if serr != nil {
		a.Err = serr
		if serr.Kind == KindLowConfidence {
			a.Confidence = serr.Score
		}
		c.obs.ObserveAttempt(a)
		return Solution{}, serr
	}
	a.Accepted = true
	a.Confidence = sol.Confidence
	c.obs.ObserveAttempt(a)
	return sol, nil
}

func (c *Coordinator) judge(name string, res strategyResult) (Solution, *StrategyError) {
	if res.err != nil {
		return Solution{}, Classify(name, res.err)
	}
	if res.sol == nil {
		return Solution{}, Classify(name, Malformed(fmt.Errorf("nil solution")))
	}
	if err := res.sol.Validate(); err != nil {
		// Out-of-range confidence and empty step lists are both unusable answers.
		return Solution{}, Classify(name, Malformed(err))
	}
	if res.sol.Confidence < c.cfg.Threshold {
		return Solution{}, Classify(name, LowConfidence(res.sol.Confidence))
	}
	return *res.sol, nil
}

// race runs contenders concurrently and returns the first accepted Solution.
// Losing strategies are canceled as soon as one is accepted. A nil Solution with a nil
// error means every contender failed.
func (c *Coordinator) race(ctx context.Context, q Question, contenders []Strategy) (*Solution, string, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type raceResult struct {
		name string
		sol  Solution
		err  error
	}
	results := make(chan raceResult, len(contenders))
	for i, s := range contenders {
		go func(position int, s Strategy) {
			sol, err := c.attempt(rctx, q, s, position)
			results <- raceResult{name: s.Name(), sol: sol, err: err}
		}(i, s)
	}

	for range contenders {
		select {
		case r := <-results:
			if r.err == nil {
				cancel()
				return &r.sol, r.name, nil
			}
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return nil, "", nil
}
