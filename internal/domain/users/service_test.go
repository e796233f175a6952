package users_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/tutora/internal/domain/users"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = sqlite.MigrateUp(db)
	require.NoError(t, err)
	return db
}

func seedStudent(t *testing.T, db *sql.DB, id, email string) {
	t.Helper()
	now := sqlite.FormatTime(time.Now())
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash, display_name, role, created_at, updated_at)
		VALUES (?, ?, 'secret-hash', 'Student', 'student', ?, ?)`, id, email, now, now)
	require.NoError(t, err)
}

func seedGuest(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := sqlite.FormatTime(time.Now())
	_, err := db.Exec(`INSERT INTO users (id, role, is_guest, created_at, updated_at) VALUES (?, 'guest', 1, ?, ?)`, id, now, now)
	require.NoError(t, err)
}

func TestService_GetAndUpdate(t *testing.T) {
	t.Parallel()

	db := newDB(t)
	seedStudent(t, db, "u1", "u1@example.com")
	svc := users.NewService(db)
	ctx := context.Background()

	u, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", u.Email)
	assert.Equal(t, pkgauth.RoleStudent, u.Role)
	assert.False(t, u.IsGuest)

	level := " terminale "
	updated, err := svc.Update(ctx, "u1", users.UpdateInput{SchoolLevel: &level})
	require.NoError(t, err)
	assert.Equal(t, "terminale", updated.SchoolLevel)
	assert.Equal(t, "Student", updated.DisplayName, "untouched field must survive")

	_, err = svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, users.ErrNotFound)
	_, err = svc.Update(ctx, "nope", users.UpdateInput{})
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestService_SetRole(t *testing.T) {
	t.Parallel()

	db := newDB(t)
	seedStudent(t, db, "u1", "boss@example.com")
	seedGuest(t, db, "g1")
	svc := users.NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.SetRole(ctx, "Boss@Example.com", pkgauth.RoleAdmin))
	u, _ := svc.Get(ctx, "u1")
	assert.Equal(t, pkgauth.RoleAdmin, u.Role)

	assert.ErrorIs(t, svc.SetRole(ctx, "missing@example.com", pkgauth.RoleAdmin), users.ErrNotFound)
	assert.ErrorIs(t, svc.SetRole(ctx, "boss@example.com", pkgauth.RoleGuest), users.ErrInvalidRole)
}

func TestService_ConsumeFreeQuestion(t *testing.T) {
	t.Parallel()

	db := newDB(t)
	seedGuest(t, db, "g1")
	seedStudent(t, db, "s1", "s1@example.com")
	svc := users.NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.ConsumeFreeQuestion(ctx, "g1", 2))
	require.NoError(t, svc.ConsumeFreeQuestion(ctx, "g1", 2))
	assert.ErrorIs(t, svc.ConsumeFreeQuestion(ctx, "g1", 2), users.ErrQuotaExceeded)

	g, _ := svc.Get(ctx, "g1")
	assert.Equal(t, 2, g.FreeQuestionsUsed)

	require.NoError(t, svc.RefundFreeQuestion(ctx, "g1"))
	require.NoError(t, svc.ConsumeFreeQuestion(ctx, "g1", 2))

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.ConsumeFreeQuestion(ctx, "s1", 2), "students are not metered")
	}
	s, _ := svc.Get(ctx, "s1")
	assert.Zero(t, s.FreeQuestionsUsed)

	err := svc.ConsumeFreeQuestion(ctx, "ghost", 2)
	assert.True(t, errors.Is(err, users.ErrNotFound))
}

func TestService_ConsumeFreeQuestion_Concurrent(t *testing.T) {
	t.Parallel()

	db := newDB(t)
	seedGuest(t, db, "g1")
	svc := users.NewService(db)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.ConsumeFreeQuestion(context.Background(), "g1", 2) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, accepted)
}
