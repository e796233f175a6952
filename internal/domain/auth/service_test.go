// Tests for AuthService run against in-memory SQLite with real migrations.
package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	domainaudit "github.com/matiasleandrokruk/tutora/internal/domain/audit"
	domainauth "github.com/matiasleandrokruk/tutora/internal/domain/auth"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	"github.com/matiasleandrokruk/tutora/pkg/auth"
)

// TestMain sets JWT_SECRET before any test runs; GenerateJWT panics without it.
func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// ===== REGISTER TESTS =====

func TestAuthService_Register_Success(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainauth.RegisterInput{
		Email:       "Amira@Example.com ",
		Password:    "SecurePass123!",
		DisplayName: "Amira",
		SchoolLevel: "bac",
	})
	if err != nil {
		t.Fatalf("Register() error = %v; want nil", err)
	}
	if result.Token == "" || result.UserID == "" {
		t.Fatalf("Register() = %+v; want token and user id", result)
	}
	if result.Role != auth.RoleStudent {
		t.Errorf("Role = %q; want student", result.Role)
	}

	claims, err := auth.ParseJWT(result.Token)
	if err != nil {
		t.Fatalf("ParseJWT error = %v", err)
	}
	if claims.UserID != result.UserID || claims.Role != auth.RoleStudent {
		t.Errorf("claims = %+v; want user %s student", claims, result.UserID)
	}

	var email, level string
	var hash sql.NullString
	if err := db.QueryRow(`SELECT email, school_level, password_hash FROM users WHERE id = ?`, result.UserID).
		Scan(&email, &level, &hash); err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if email != "amira@example.com" {
		t.Errorf("email = %q; want lower-cased and trimmed", email)
	}
	if level != "bac" {
		t.Errorf("school_level = %q; want bac", level)
	}
	if !hash.Valid || hash.String == "SecurePass123!" {
		t.Error("password_hash should be a bcrypt hash")
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := domainauth.NewAuthService(mustOpenDB(t))
	in := domainauth.RegisterInput{Email: "dup@example.com", Password: "SecurePass123!"}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := svc.Register(context.Background(), in)
	if !errors.Is(err, domainauth.ErrEmailAlreadyExists) {
		t.Errorf("second Register() error = %v; want ErrEmailAlreadyExists", err)
	}
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	t.Parallel()

	svc := domainauth.NewAuthService(mustOpenDB(t))
	for _, in := range []domainauth.RegisterInput{
		{Email: "not-an-email", Password: "SecurePass123!"},
		{Email: "Name <x@example.com>", Password: "SecurePass123!"},
		{Email: "short@example.com", Password: "1234567"},
	} {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, domainauth.ErrInvalidInput) {
			t.Errorf("Register(%q) error = %v; want ErrInvalidInput", in.Email, err)
		}
	}
}

// ===== GUEST TESTS =====

func TestAuthService_StartGuest(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainauth.NewAuthService(db)

	result, err := svc.StartGuest(context.Background())
	if err != nil {
		t.Fatalf("StartGuest() error = %v", err)
	}
	if result.Role != auth.RoleGuest {
		t.Errorf("Role = %q; want guest", result.Role)
	}
	claims, err := auth.ParseJWT(result.Token)
	if err != nil || claims.Role != auth.RoleGuest {
		t.Fatalf("guest token claims = %+v, %v", claims, err)
	}

	var isGuest, used int
	if err := db.QueryRow(`SELECT is_guest, free_questions_used FROM users WHERE id = ?`, result.UserID).
		Scan(&isGuest, &used); err != nil {
		t.Fatalf("guest not persisted: %v", err)
	}
	if isGuest != 1 || used != 0 {
		t.Errorf("is_guest=%d used=%d; want 1, 0", isGuest, used)
	}
}

func TestAuthService_Register_UpgradesGuest(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainauth.NewAuthService(db)
	ctx := context.Background()

	guest, err := svc.StartGuest(ctx)
	if err != nil {
		t.Fatalf("StartGuest() error = %v", err)
	}
	if _, err := db.Exec(`UPDATE users SET free_questions_used = 2 WHERE id = ?`, guest.UserID); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Register(ctx, domainauth.RegisterInput{
		Email: "upgraded@example.com", Password: "SecurePass123!", GuestID: guest.UserID,
	})
	if err != nil {
		t.Fatalf("Register(upgrade) error = %v", err)
	}
	if result.UserID != guest.UserID {
		t.Errorf("UserID = %q; want guest id %q kept", result.UserID, guest.UserID)
	}

	var role string
	var isGuest, used int
	if err := db.QueryRow(`SELECT role, is_guest, free_questions_used FROM users WHERE id = ?`, guest.UserID).
		Scan(&role, &isGuest, &used); err != nil {
		t.Fatal(err)
	}
	if role != "student" || isGuest != 0 || used != 0 {
		t.Errorf("after upgrade role=%s is_guest=%d used=%d", role, isGuest, used)
	}

	if _, err := svc.Register(ctx, domainauth.RegisterInput{
		Email: "again@example.com", Password: "SecurePass123!", GuestID: guest.UserID,
	}); !errors.Is(err, domainauth.ErrGuestNotFound) {
		t.Errorf("second upgrade error = %v; want ErrGuestNotFound", err)
	}
}

// ===== LOGIN TESTS =====

func TestAuthService_Login_Success(t *testing.T) {
	t.Parallel()

	svc := domainauth.NewAuthService(mustOpenDB(t))
	ctx := context.Background()

	reg, err := svc.Register(ctx, domainauth.RegisterInput{Email: "yassine@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatal(err)
	}
	result, err := svc.Login(ctx, domainauth.LoginInput{Email: "YASSINE@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.UserID != reg.UserID || result.Role != auth.RoleStudent {
		t.Errorf("Login() = %+v; want user %s student", result, reg.UserID)
	}
}

func TestAuthService_Login_AdminRoleInToken(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainauth.NewAuthService(db)
	ctx := context.Background()

	reg, _ := svc.Register(ctx, domainauth.RegisterInput{Email: "admin@example.com", Password: "SecurePass123!"})
	if _, err := db.Exec(`UPDATE users SET role = 'admin' WHERE id = ?`, reg.UserID); err != nil {
		t.Fatal(err)
	}
	result, err := svc.Login(ctx, domainauth.LoginInput{Email: "admin@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, _ := auth.ParseJWT(result.Token)
	if claims == nil || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v; want admin role", claims)
	}
}

// TestAuthService_Login_ErrorMessageGeneric verifies the error doesn't reveal whether the email exists.
func TestAuthService_Login_ErrorMessageGeneric(t *testing.T) {
	t.Parallel()

	svc := domainauth.NewAuthService(mustOpenDB(t))
	ctx := context.Background()

	svc.Register(ctx, domainauth.RegisterInput{Email: "hank@example.com", Password: "SecurePass123!"}) //nolint:errcheck

	_, errWrongPw := svc.Login(ctx, domainauth.LoginInput{Email: "hank@example.com", Password: "WrongPassword!"})
	_, errNoUser := svc.Login(ctx, domainauth.LoginInput{Email: "nosuchuser@example.com", Password: "SecurePass123!"})

	if !errors.Is(errWrongPw, domainauth.ErrInvalidCredentials) || !errors.Is(errNoUser, domainauth.ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials for both, got %v / %v", errWrongPw, errNoUser)
	}
	if errWrongPw.Error() != errNoUser.Error() {
		t.Errorf("Error messages should be identical: got %q vs %q", errWrongPw.Error(), errNoUser.Error())
	}
}

func TestAuthService_Login_GuestCannotLogin(t *testing.T) {
	t.Parallel()

	svc := domainauth.NewAuthService(mustOpenDB(t))
	if _, err := svc.StartGuest(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Login(context.Background(), domainauth.LoginInput{Email: "", Password: ""})
	if !errors.Is(err, domainauth.ErrInvalidCredentials) {
		t.Errorf("Login(empty) error = %v; want ErrInvalidCredentials", err)
	}
}

// ===== AUDIT TESTS =====

func TestAuthService_WithAudit_RecordsOutcomes(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	auditSvc := domainaudit.NewAuditService(db)
	svc := domainauth.NewAuthServiceWithAudit(db, auditSvc)
	ctx := context.Background()

	reg, err := svc.Register(ctx, domainauth.RegisterInput{Email: "log@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatal(err)
	}
	svc.Login(ctx, domainauth.LoginInput{Email: "log@example.com", Password: "nope-nope"}) //nolint:errcheck

	events, err := auditSvc.ListByActor(ctx, reg.UserID, 10)
	if err != nil {
		t.Fatal(err)
	}
	var sawRegister, sawFailure bool
	for _, ev := range events {
		if ev.Action == "auth.register" && ev.Outcome == domainaudit.OutcomeSuccess {
			sawRegister = true
		}
		if ev.Action == "auth.login" && ev.Outcome == domainaudit.OutcomeError {
			sawFailure = true
		}
	}
	if !sawRegister || !sawFailure {
		t.Errorf("missing audit events: register=%v failed login=%v (%d events)", sawRegister, sawFailure, len(events))
	}
}

// ===== TEST HELPERS =====

// mustOpenDB opens an in-memory SQLite DB with all migrations applied.
func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.NewDB(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp error = %v", err)
	}
	return db
}
