package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
)

// ErrNotFound is returned by GetByID for an unknown event.
var ErrNotFound = errors.New("audit event not found")

// AuditService writes and reads the append-only audit log.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

const auditColumns = `id, actor_id, actor_type, action, entity_type, entity_id, details,
	outcome, trace_id, ip_address, user_agent, created_at`

// Log inserts event as-is. Missing ID and CreatedAt are filled in.
func (s *AuditService) Log(ctx context.Context, event *AuditEvent) error {
	if event.ID == "" {
		event.ID = generateID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	details := normalizeJSON(event.Details, []byte("{}"))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_event (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.ActorID, string(event.ActorType), event.Action,
		event.EntityType, event.EntityID, string(details), string(event.Outcome),
		event.TraceID, event.IPAddress, event.UserAgent, sqlite.FormatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", event.Action, err)
	}
	return nil
}

// LogWithDetails builds an event from its parts and logs it.
func (s *AuditService) LogWithDetails(
	ctx context.Context,
	actorID string,
	actorType ActorType,
	action string,
	entityType *string,
	entityID *string,
	details *EventDetails,
	outcome Outcome,
) error {
	var detailsJSON json.RawMessage
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}

	return s.Log(ctx, &AuditEvent{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    detailsJSON,
		Outcome:    outcome,
	})
}

func (s *AuditService) GetByID(ctx context.Context, id string) (*AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_event WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// List returns one page of events, newest first, and the total count.
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]*AuditEvent, int, error) {
	events, err := s.query(ctx, `SELECT `+auditColumns+` FROM audit_event
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_event`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}
	return events, total, nil
}

func (s *AuditService) ListByActor(ctx context.Context, actorID string, limit int) ([]*AuditEvent, error) {
	return s.query(ctx, `SELECT `+auditColumns+` FROM audit_event
		WHERE actor_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, actorID, limit)
}

func (s *AuditService) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*AuditEvent, error) {
	return s.query(ctx, `SELECT `+auditColumns+` FROM audit_event
		WHERE entity_type = ? AND entity_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		entityType, entityID, limit)
}

func (s *AuditService) ListByOutcome(ctx context.Context, outcome Outcome, limit int) ([]*AuditEvent, error) {
	return s.query(ctx, `SELECT `+auditColumns+` FROM audit_event
		WHERE outcome = ? ORDER BY created_at DESC, id DESC LIMIT ?`, string(outcome), limit)
}

func (s *AuditService) query(ctx context.Context, q string, args ...any) ([]*AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (*AuditEvent, error) {
	var (
		ev                  AuditEvent
		actorType, outcome  string
		details, createdAt  string
		entityType          sql.NullString
		entityID, traceID   sql.NullString
		ipAddress, userAgnt sql.NullString
	)
	if err := sc.Scan(&ev.ID, &ev.ActorID, &actorType, &ev.Action, &entityType, &entityID,
		&details, &outcome, &traceID, &ipAddress, &userAgnt, &createdAt); err != nil {
		return nil, err
	}
	ev.ActorType = ActorType(actorType)
	ev.Outcome = Outcome(outcome)
	ev.Details = json.RawMessage(details)
	ev.EntityType = nullable(entityType)
	ev.EntityID = nullable(entityID)
	ev.TraceID = nullable(traceID)
	ev.IPAddress = nullable(ipAddress)
	ev.UserAgent = nullable(userAgnt)
	t, err := sqlite.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	ev.CreatedAt = t
	return &ev, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// generateID returns a time-ordered UUID v7.
func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func normalizeJSON(raw json.RawMessage, fallback []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(fallback)
	}
	return raw
}
