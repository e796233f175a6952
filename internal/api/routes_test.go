// Wiring tests for NewRouter: public routes, the guest quota flow and admin gating,
// run against a real in-memory SQLite DB.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/domain/solver/strategies"
	"github.com/matiasleandrokruk/tutora/internal/domain/stats"
	"github.com/matiasleandrokruk/tutora/internal/domain/users"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

func TestMain(m *testing.M) {
	// AuthMiddleware reads JWT_SECRET; it must be set for protected routes to parse tokens.
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// mustOpenAPITestDB opens an in-memory SQLite DB with all migrations applied.
func mustOpenAPITestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("mustOpenAPITestDB: NewDB: %v", err)
	}
	if _, err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("mustOpenAPITestDB: MigrateUp: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRouter(t *testing.T) (http.Handler, *sql.DB) {
	t.Helper()
	db := mustOpenAPITestDB(t)
	reg := prometheus.NewRegistry()
	coord := solver.NewCoordinator(
		[]solver.Strategy{strategies.NewHeuristic()},
		solver.DefaultConfig(),
		solver.NewMetricsObserver(reg),
	)
	return NewRouter(Deps{
		DB:                 db,
		Resolver:           coord,
		Recorder:           stats.NewRecorder(db, nil),
		Gatherer:           reg,
		FreeQuestionLimit:  2,
		RateLimitPerMinute: 100,
	}), db
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// TestNewRouter_HealthEndpoint verifies that NewRouter registers the /health route.
func TestNewRouter_HealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected body to contain 'ok', got %q", w.Body.String())
	}
}

func TestNewRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/api/v1/me", "/api/v1/conversations", "/api/v1/admin/content"} {
		w := do(t, router, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestNewRouter_GuestQuotaAndUpgrade(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/auth/guest", "", "")
	require.Equal(t, http.StatusCreated, w.Code)
	guest := decode(t, w)
	guestToken := guest["token"].(string)
	assert.Equal(t, "guest", guest["role"])

	w = do(t, router, http.MethodPost, "/api/v1/conversations/new/messages", guestToken,
		`{"content":"Calculer la limite de 1/x en 0","language":"fr"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ask := decode(t, w)
	convID := ask["conversation"].(map[string]any)["id"].(string)
	aiMsg := ask["aiMessage"].(map[string]any)
	assert.Equal(t, "assistant", aiMsg["type"])
	assert.Equal(t, "heuristic", aiMsg["metadata"].(map[string]any)["source"])

	w = do(t, router, http.MethodGet, "/api/v1/messages/"+aiMsg["id"].(string)+"/solution", guestToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", guestToken, `{"content":"dérivée de x²"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", guestToken, `{"content":"encore"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, true, decode(t, w)["requiresAuth"])

	// Signing up with the guest token keeps the conversation and lifts the quota.
	w = do(t, router, http.MethodPost, "/auth/register", guestToken,
		`{"email":"amira@example.com","password":"s3cret-pass","displayName":"Amira"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	student := decode(t, w)
	assert.Equal(t, guest["userId"], student["userId"])
	studentToken := student["token"].(string)

	w = do(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", studentToken, `{"content":"encore"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", studentToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["messages"], 6)

	w = do(t, router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tutora_solver")
}

func TestNewRouter_AdminRoutes(t *testing.T) {
	router, db := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/auth/register", "", `{"email":"prof@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	studentToken := decode(t, w)["token"].(string)

	w = do(t, router, http.MethodGet, "/api/v1/admin/content", studentToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, users.NewService(db).SetRole(context.Background(), "prof@example.com", pkgauth.RoleAdmin))
	w = do(t, router, http.MethodPost, "/auth/login", "", `{"email":"prof@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, w.Code)
	adminToken := decode(t, w)["token"].(string)

	w = do(t, router, http.MethodPost, "/api/v1/admin/content", adminToken, `{
		"type":"solution_template","title":"Limite en zéro","keywords":["limite"],"isPublished":true,
		"content":{"steps":[{"title":"Étape 1","explanation":"Factoriser"}],"finalAnswer":"+∞"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["content"].(map[string]any)["id"].(string)

	w = do(t, router, http.MethodPatch, "/api/v1/admin/content/"+id, adminToken, `{"isPublished":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["content"].(map[string]any)["isPublished"])

	w = do(t, router, http.MethodGet, "/api/v1/admin/stats/strategies?window=24h", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/admin/stats/strategies?window=soon", adminToken, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/v1/admin/content/"+id, adminToken, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, "/api/v1/admin/content/"+id, adminToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
