// Route registration: public routes (/health, /metrics, /auth/*) and
// JWT-protected routes (/api/v1/*), with admin routes under /api/v1/admin.
package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/tutora/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/tutora/internal/api/middleware"
	domainaudit "github.com/matiasleandrokruk/tutora/internal/domain/audit"
	domainauth "github.com/matiasleandrokruk/tutora/internal/domain/auth"
	"github.com/matiasleandrokruk/tutora/internal/domain/chat"
	"github.com/matiasleandrokruk/tutora/internal/domain/content"
	"github.com/matiasleandrokruk/tutora/internal/domain/stats"
	"github.com/matiasleandrokruk/tutora/internal/domain/users"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	DB       *sql.DB
	Resolver chat.Resolver
	Recorder *stats.Recorder
	Logger   *zap.Logger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer           prometheus.Gatherer
	FreeQuestionLimit  int
	RateLimitPerMinute int
}

// NewRouter creates and configures a new chi router with all routes.
func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Recorder == nil {
		d.Recorder = stats.NewRecorder(d.DB, d.Logger)
	}

	r := chi.NewRouter()
	auditService := domainaudit.NewAuditService(d.DB)
	userService := users.NewService(d.DB)
	chatService := chat.NewService(d.DB, d.Resolver, userService, d.FreeQuestionLimit, d.Logger)

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES (no auth required) =====

	// Health check, used by load balancers and probes. Reports the store as well.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := d.DB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","db":"unreachable"}`)) //nolint:errcheck
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	authHandler := handlers.NewAuthHandler(domainauth.NewAuthServiceWithAudit(d.DB, auditService))
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register) // POST /auth/register
		r.Post("/login", authHandler.Login)       // POST /auth/login
		r.Post("/guest", authHandler.Guest)       // POST /auth/guest
	})

	// ===== PROTECTED ROUTES (JWT required via AuthMiddleware) =====

	limiter := apmiddleware.NewRateLimiter(d.RateLimitPerMinute, d.Logger)
	meHandler := handlers.NewMeHandler(userService)
	chatHandler := handlers.NewChatHandler(chatService)
	contentHandler := handlers.NewContentHandler(content.NewService(d.DB))
	statsHandler := handlers.NewStatsHandler(d.Recorder)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.AuthMiddleware)
		r.Use(apmiddleware.AuditMiddleware(auditService))

		r.Get("/me", meHandler.Get)
		r.Patch("/me", meHandler.Update)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", chatHandler.CreateConversation)
			r.Get("/", chatHandler.ListConversations)
			r.Get("/{id}", chatHandler.GetConversation)
			r.Delete("/{id}", chatHandler.DeleteConversation)
			r.Get("/{id}/messages", chatHandler.ListMessages)
			r.With(limiter.Middleware).Post("/{id}/messages", chatHandler.Ask)
		})

		r.Get("/messages/{id}/solution", chatHandler.GetSolution)
		r.With(limiter.Middleware).Post("/solve", chatHandler.Solve)

		r.Route("/admin", func(r chi.Router) {
			r.Use(apmiddleware.RequireAdmin)

			r.Route("/content", func(r chi.Router) {
				r.Get("/", contentHandler.List)
				r.Post("/", contentHandler.Create)
				r.Get("/{id}", contentHandler.Get)
				r.Patch("/{id}", contentHandler.Update)
				r.Delete("/{id}", contentHandler.Delete)
			})
			r.Get("/stats/strategies", statsHandler.Strategies)
		})
	})

	return r
}
