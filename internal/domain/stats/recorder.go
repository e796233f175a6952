// Package stats persists solver attempts and aggregates them per strategy.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/infra/eventbus"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
)

// StrategySummary aggregates the recorded attempts of one strategy.
type StrategySummary struct {
	Strategy       string                   `json:"strategy"`
	Attempts       int                      `json:"attempts"`
	Accepted       int                      `json:"accepted"`
	Canceled       int                      `json:"canceled"`
	Failures       map[solver.ErrorKind]int `json:"failures"`
	AcceptanceRate float64                  `json:"acceptanceRate"`
	AvgConfidence  float64                  `json:"avgConfidence"`
	AvgLatencyMs   float64                  `json:"avgLatencyMs"`
}

// Summary is the response of the admin stats endpoint.
type Summary struct {
	Since      time.Time         `json:"since"`
	Questions  int               `json:"questions"`
	Strategies []StrategySummary `json:"strategies"`
}

// Recorder stores solver attempts published on the event bus.
type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(db *sql.DB, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, logger: logger.Named("stats"), now: time.Now}
}

// Start consumes solver.attempt events until ctx is done or the channel is closed.
// Runs in the calling goroutine.
func (r *Recorder) Start(ctx context.Context, bus eventbus.EventBus) {
	ch := bus.Subscribe(eventbus.TopicSolverAttempt)
	defer bus.Unsubscribe(eventbus.TopicSolverAttempt, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			a, ok := evt.Payload.(solver.Attempt)
			if !ok {
				continue
			}
			if err := r.Record(ctx, a); err != nil {
				r.logger.Warn("record attempt failed", zap.String("strategy", a.Strategy), zap.Error(err))
			}
		}
	}
}

// Record inserts one attempt row.
func (r *Recorder) Record(ctx context.Context, a solver.Attempt) error {
	var (
		confidence sql.NullInt64
		kind       sql.NullString
	)
	if a.Err != nil {
		kind = sql.NullString{String: string(a.Err.Kind), Valid: true}
	}
	if a.Accepted || a.Kind() == solver.KindLowConfidence {
		confidence = sql.NullInt64{Int64: int64(a.Confidence), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO strategy_attempt
			(id, question_id, strategy, position, language, accepted, canceled, confidence, error_kind, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.Must(uuid.NewV7()).String(), a.QuestionID, a.Strategy, a.Position, string(a.Language.Normalize()),
		boolInt(a.Accepted), boolInt(a.Canceled), confidence, kind, a.Elapsed.Milliseconds(),
		sqlite.FormatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("stats: insert attempt: %w", err)
	}
	return nil
}

// Summary aggregates attempts recorded at or after since. A zero since covers everything.
func (r *Recorder) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	from := ""
	if !since.IsZero() {
		from = sqlite.FormatTime(since)
	}
	out := &Summary{Since: since, Strategies: []StrategySummary{}}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT question_id) FROM strategy_attempt WHERE created_at >= ?`, from,
	).Scan(&out.Questions); err != nil {
		return nil, fmt.Errorf("stats: count questions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT strategy,
		       COUNT(*),
		       SUM(accepted),
		       SUM(canceled),
		       COALESCE(AVG(CASE WHEN accepted = 1 THEN confidence END), 0),
		       AVG(elapsed_ms)
		FROM strategy_attempt
		WHERE created_at >= ?
		GROUP BY strategy`, from)
	if err != nil {
		return nil, fmt.Errorf("stats: summarize: %w", err)
	}
	defer rows.Close()

	byName := map[string]*StrategySummary{}
	for rows.Next() {
		s := StrategySummary{Failures: map[solver.ErrorKind]int{}}
		if err := rows.Scan(&s.Strategy, &s.Attempts, &s.Accepted, &s.Canceled, &s.AvgConfidence, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("stats: scan summary: %w", err)
		}
		if s.Attempts > 0 {
			s.AcceptanceRate = float64(s.Accepted) / float64(s.Attempts)
		}
		out.Strategies = append(out.Strategies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out.Strategies {
		byName[out.Strategies[i].Strategy] = &out.Strategies[i]
	}

	if err := r.failures(ctx, from, byName); err != nil {
		return nil, err
	}
	sort.Slice(out.Strategies, func(i, j int) bool {
		return out.Strategies[i].Strategy < out.Strategies[j].Strategy
	})
	return out, nil
}

func (r *Recorder) failures(ctx context.Context, from string, byName map[string]*StrategySummary) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT strategy, error_kind, COUNT(*)
		FROM strategy_attempt
		WHERE created_at >= ? AND error_kind IS NOT NULL
		GROUP BY strategy, error_kind`, from)
	if err != nil {
		return fmt.Errorf("stats: failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, kind string
			n          int
		)
		if err := rows.Scan(&name, &kind, &n); err != nil {
			return fmt.Errorf("stats: scan failures: %w", err)
		}
		if s, ok := byName[name]; ok {
			s.Failures[solver.ErrorKind(kind)] = n
		}
	}
	return rows.Err()
}

// Prune deletes attempts recorded before cutoff and returns how many were removed.
func (r *Recorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM strategy_attempt WHERE created_at < ?`, sqlite.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("stats: prune: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
