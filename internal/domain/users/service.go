// Package users manages profiles and the guest free question quota.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

var (
	// ErrNotFound is returned for an unknown user id or email.
	ErrNotFound = errors.New("user not found")
	// ErrQuotaExceeded is returned when a guest has used every free question.
	ErrQuotaExceeded = errors.New("free question limit reached")
	// ErrInvalidRole is returned by SetRole for roles other than student and admin.
	ErrInvalidRole = errors.New("invalid role")
)

// User is the public profile. The password hash never leaves the store.
type User struct {
	ID                string       `json:"id"`
	Email             string       `json:"email,omitempty"`
	DisplayName       string       `json:"displayName"`
	SchoolLevel       string       `json:"schoolLevel"`
	Role              pkgauth.Role `json:"role"`
	IsGuest           bool         `json:"isGuest"`
	FreeQuestionsUsed int          `json:"freeQuestionsUsed"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// UpdateInput carries a partial profile update; nil fields are left unchanged.
type UpdateInput struct {
	DisplayName *string
	SchoolLevel *string
}

// Service reads and updates users.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const userColumns = `id, COALESCE(email, ''), display_name, school_level, role, is_guest,
	free_questions_used, created_at, updated_at`

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: get %s: %w", id, err)
	}
	return u, nil
}

// Update applies in and returns the stored profile.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*User, error) {
	sets := []string{"updated_at = ?"}
	args := []any{sqlite.FormatTime(time.Now())}
	if in.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, strings.TrimSpace(*in.DisplayName))
	}
	if in.SchoolLevel != nil {
		sets = append(sets, "school_level = ?")
		args = append(args, strings.TrimSpace(*in.SchoolLevel))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("users: update %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// SetRole promotes or demotes a registered account by email.
func (s *Service) SetRole(ctx context.Context, email string, role pkgauth.Role) error {
	if role != pkgauth.RoleStudent && role != pkgauth.RoleAdmin {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = ?, updated_at = ?
		WHERE email = ? AND is_guest = 0
	`, string(role), sqlite.FormatTime(time.Now()), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("users: set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeFreeQuestion charges one question against a guest's quota.
// Registered users are never metered. The check and increment happen in
// one statement, so concurrent asks cannot overshoot limit.
func (s *Service) ConsumeFreeQuestion(ctx context.Context, userID string, limit int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET free_questions_used = free_questions_used + 1, updated_at = ?
		WHERE id = ? AND is_guest = 1 AND free_questions_used < ?
	`, sqlite.FormatTime(time.Now()), userID, limit)
	if err != nil {
		return fmt.Errorf("users: consume free question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.IsGuest {
		return ErrQuotaExceeded
	}
	return nil
}

// RefundFreeQuestion gives back a question charged by ConsumeFreeQuestion when
// the ask could not be stored.
func (s *Service) RefundFreeQuestion(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET free_questions_used = free_questions_used - 1
		WHERE id = ? AND is_guest = 1 AND free_questions_used > 0
	`, userID)
	if err != nil {
		return fmt.Errorf("users: refund free question: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*User, error) {
	var (
		u                    User
		role                 string
		isGuest              int
		createdAt, updatedAt string
	)
	if err := sc.Scan(&u.ID, &u.Email, &u.DisplayName, &u.SchoolLevel, &role, &isGuest,
		&u.FreeQuestionsUsed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Role = pkgauth.Role(role)
	u.IsGuest = isGuest == 1
	var err error
	if u.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
