package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	domainauth "github.com/matiasleandrokruk/tutora/internal/domain/auth"
	"github.com/matiasleandrokruk/tutora/internal/domain/stats"
	"github.com/matiasleandrokruk/tutora/internal/domain/users"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

// useTempDB points TUTORA_DB_PATH at a fresh file; commands open it themselves.
func useTempDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tutora.db")
	t.Setenv("TUTORA_DB_PATH", path)
	t.Setenv("TUTORA_SOLVER_CONFIG", "")
	t.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!")
	return path
}

func TestRun_Version_PrintsVersion(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	code := run([]string{"--version"}, &out)

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out.String(), "tutora version") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRun_Help_PrintsUsage(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	code := run([]string{"--help"}, &out)

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out.String(), "Usage:") || !strings.Contains(out.String(), "promote") {
		t.Fatalf("expected help output, got %q", out.String())
	}
}

func TestRun_InvalidFlag_Returns2(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := run([]string{"--unknown-flag"}, &out); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRun_UnknownCommand_Returns2(t *testing.T) {
	useTempDB(t)

	var out bytes.Buffer
	if code := run([]string{"teleport"}, &out); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(out.String(), `unknown command "teleport"`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRun_MigrateAndStatus(t *testing.T) {
	useTempDB(t)

	var out bytes.Buffer
	if code := run([]string{"migrate"}, &out); code != 0 {
		t.Fatalf("migrate exit %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "applied 001_init_schema.up.sql") {
		t.Fatalf("expected applied migrations, got %q", out.String())
	}

	out.Reset()
	if code := run([]string{"migrate", "up"}, &out); code != 0 {
		t.Fatalf("second migrate exit %d", code)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Fatalf("expected up to date, got %q", out.String())
	}

	out.Reset()
	if code := run([]string{"migrate", "status"}, &out); code != 0 {
		t.Fatalf("status exit %d", code)
	}
	if strings.Contains(out.String(), "pending") || !strings.Contains(out.String(), "applied") {
		t.Fatalf("unexpected status %q", out.String())
	}

	out.Reset()
	if code := run([]string{"migrate", "down"}, &out); code != 1 {
		t.Fatalf("migrate down should fail, got %d", code)
	}
}

func TestRun_Promote(t *testing.T) {
	path := useTempDB(t)

	db, err := sqlite.NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if _, err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	_, err = domainauth.NewAuthService(db).Register(context.Background(), domainauth.RegisterInput{
		Email: "prof@example.com", Password: "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	db.Close()

	var out bytes.Buffer
	if code := run([]string{"promote", "--email", "prof@example.com"}, &out); code != 0 {
		t.Fatalf("promote exit %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "prof@example.com is now admin") {
		t.Fatalf("unexpected output %q", out.String())
	}

	db, err = sqlite.NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	var role string
	if err := db.QueryRow(`SELECT role FROM users WHERE email = ?`, "prof@example.com").Scan(&role); err != nil {
		t.Fatalf("query role: %v", err)
	}
	if role != string(pkgauth.RoleAdmin) {
		t.Fatalf("role = %q; want admin", role)
	}
}

func TestRun_PromoteErrors(t *testing.T) {
	useTempDB(t)

	var out bytes.Buffer
	if code := run([]string{"promote"}, &out); code != 1 {
		t.Fatalf("missing email exit %d", code)
	}
	out.Reset()
	if code := run([]string{"promote", "--email", "nobody@example.com"}, &out); code != 1 {
		t.Fatalf("unknown email exit %d", code)
	}
	if !strings.Contains(out.String(), users.ErrNotFound.Error()) {
		t.Fatalf("unexpected output %q", out.String())
	}
	out.Reset()
	if code := run([]string{"promote", "--email", "x@example.com", "--role", "guest"}, &out); code != 1 {
		t.Fatalf("guest role exit %d", code)
	}
}

func TestRun_Stats_PrintsSummary(t *testing.T) {
	useTempDB(t)

	var out bytes.Buffer
	if code := run([]string{"stats", "--window", "24h"}, &out); code != 0 {
		t.Fatalf("stats exit %d: %s", code, out.String())
	}
	var sum stats.Summary
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if sum.Questions != 0 {
		t.Fatalf("expected empty summary, got %+v", sum)
	}
}
