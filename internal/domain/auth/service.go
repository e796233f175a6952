// AuthService: registration, login and anonymous guest sessions.
// Handles user creation, password hashing and JWT issuance.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	domainaudit "github.com/matiasleandrokruk/tutora/internal/domain/audit"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

// ErrInvalidCredentials is returned by Login when email or password is incorrect.
// A single error for both cases avoids leaking whether an email exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailAlreadyExists is returned by Register when the email is already taken.
var ErrEmailAlreadyExists = errors.New("email already registered")

// ErrInvalidInput is returned by Register for a malformed email or short password.
var ErrInvalidInput = errors.New("invalid registration input")

// ErrGuestNotFound is returned when Register is asked to upgrade an unknown guest.
var ErrGuestNotFound = errors.New("guest account not found")

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// RegisterInput holds the data needed to create a student account.
// When GuestID is set the guest row is upgraded in place, keeping its conversations.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	SchoolLevel string
	GuestID     string
}

// LoginInput holds the credentials for authentication.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned after successful Register, Login or StartGuest.
//
//nolint:revive // stable domain API name
type AuthResult struct {
	Token  string
	UserID string
	Role   pkgauth.Role
}

// AuthService defines the authentication business operations.
//
//nolint:revive // stable public interface name
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	StartGuest(ctx context.Context) (*AuthResult, error)
}

// authService is the concrete implementation backed by SQLite.
type authService struct {
	db          *sql.DB
	auditLogger auditLogger
}

type auditLogger interface {
	LogWithDetails(
		ctx context.Context,
		actorID string,
		actorType domainaudit.ActorType,
		action string,
		entityType *string,
		entityID *string,
		details *domainaudit.EventDetails,
		outcome domainaudit.Outcome,
	) error
}

// NewAuthService creates a new AuthService backed by the provided DB.
func NewAuthService(db *sql.DB) AuthService {
	return &authService{db: db}
}

// NewAuthServiceWithAudit creates a new AuthService with audit logging.
func NewAuthServiceWithAudit(db *sql.DB, logger auditLogger) AuthService {
	return &authService{db: db, auditLogger: logger}
}

// Register creates a student account (or upgrades a guest) and returns a JWT.
// The password is hashed with bcrypt before storage.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password shorter than %d characters", ErrInvalidInput, MinPasswordLength)
	}

	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p := userParams{
		email:        email,
		passwordHash: hash,
		displayName:  strings.TrimSpace(input.DisplayName),
		schoolLevel:  strings.TrimSpace(input.SchoolLevel),
	}
	var userID string
	if input.GuestID != "" {
		userID = input.GuestID
		err = s.upgradeGuest(ctx, userID, p)
	} else {
		userID = uuid.Must(uuid.NewV7()).String()
		err = s.insertUser(ctx, userID, p)
	}
	if err != nil {
		s.logAuthFailure(ctx, userID, "register", reasonFor(err))
		return nil, err
	}

	return s.issue(ctx, userID, pkgauth.RoleStudent, "register")
}

// userParams bundles the columns written on registration.
type userParams struct {
	email        string
	passwordHash string
	displayName  string
	schoolLevel  string
}

func (s *authService) insertUser(ctx context.Context, userID string, p userParams) error {
	now := sqlite.FormatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, school_level, role, is_guest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'student', 0, ?, ?)
	`, userID, p.email, p.passwordHash, p.displayName, p.schoolLevel, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// upgradeGuest turns a guest row into a student account. The free question
// counter is reset since registered students are not metered.
func (s *authService) upgradeGuest(ctx context.Context, guestID string, p userParams) error {
	now := sqlite.FormatTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = ?, password_hash = ?, display_name = ?, school_level = ?,
		    role = 'student', is_guest = 0, free_questions_used = 0, updated_at = ?
		WHERE id = ? AND is_guest = 1
	`, p.email, p.passwordHash, p.displayName, p.schoolLevel, now, guestID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to upgrade guest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGuestNotFound
	}
	return nil
}

// Login verifies credentials and returns a JWT.
// Always returns ErrInvalidCredentials for any failure (email not found OR wrong password).
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	var userID, role string
	var passwordHash sql.NullString

	email := strings.ToLower(strings.TrimSpace(input.Email))
	err := s.db.QueryRowContext(ctx, `
		SELECT id, role, password_hash
		FROM users
		WHERE email = ? AND is_guest = 0
		LIMIT 1
	`, email).Scan(&userID, &role, &passwordHash)
	if err != nil {
		s.logAuthFailure(ctx, "unknown", "login", "user_not_found_or_query_error")
		return nil, ErrInvalidCredentials
	}

	if !passwordHash.Valid || passwordHash.String == "" {
		s.logAuthFailure(ctx, userID, "login", "missing_password_hash")
		return nil, ErrInvalidCredentials
	}

	// bcrypt comparison is constant-time.
	if !pkgauth.VerifyPassword(passwordHash.String, input.Password) {
		s.logAuthFailure(ctx, userID, "login", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, userID, pkgauth.Role(role), "login")
}

// StartGuest creates an anonymous account limited to the free question quota.
func (s *authService) StartGuest(ctx context.Context) (*AuthResult, error) {
	userID := uuid.Must(uuid.NewV7()).String()
	now := sqlite.FormatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, role, is_guest, created_at, updated_at)
		VALUES (?, 'guest', 1, ?, ?)
	`, userID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create guest: %w", err)
	}
	return s.issue(ctx, userID, pkgauth.RoleGuest, "guest")
}

func (s *authService) issue(ctx context.Context, userID string, role pkgauth.Role, action string) (*AuthResult, error) {
	token, err := pkgauth.GenerateJWT(userID, role)
	if err != nil {
		s.logAuthFailure(ctx, userID, action, "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	s.logAuthSuccess(ctx, userID, role, action)
	return &AuthResult{Token: token, UserID: userID, Role: role}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return email, nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrEmailAlreadyExists):
		return "email_taken"
	case errors.Is(err, ErrGuestNotFound):
		return "guest_not_found"
	default:
		return "store_error"
	}
}

// isUniqueViolation checks if an SQLite error is a UNIQUE constraint violation.
// SQLite surfaces this as an error message containing "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *authService) logAuthSuccess(ctx context.Context, userID string, role pkgauth.Role, action string) {
	if s.auditLogger == nil {
		return
	}
	actor := domainaudit.ActorTypeUser
	if role == pkgauth.RoleGuest {
		actor = domainaudit.ActorTypeGuest
	}
	_ = s.auditLogger.LogWithDetails(ctx, userID, actor, "auth."+action, nil, nil, nil, domainaudit.OutcomeSuccess)
}

func (s *authService) logAuthFailure(ctx context.Context, userID, action, reason string) {
	if s.auditLogger == nil {
		return
	}
	_ = s.auditLogger.LogWithDetails(
		ctx,
		userID,
		domainaudit.ActorTypeUser,
		"auth."+action,
		nil,
		nil,
		&domainaudit.EventDetails{Metadata: map[string]any{"reason": reason}},
		domainaudit.OutcomeError,
	)
}
