// Package app assembles the long-lived components shared by the HTTP server
// and the MCP server: storage, the strategy chain and its observers.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/tutora/internal/domain/content"
	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/domain/solver/strategies"
	"github.com/matiasleandrokruk/tutora/internal/domain/stats"
	"github.com/matiasleandrokruk/tutora/internal/infra/config"
	"github.com/matiasleandrokruk/tutora/internal/infra/eventbus"
	"github.com/matiasleandrokruk/tutora/internal/infra/llm"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
)

// App holds the wired components. Close releases them.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Bus      *eventbus.Bus
	Registry *prometheus.Registry
	Resolver *solver.Coordinator
	Recorder *stats.Recorder
}

// New opens the database, applies pending migrations and builds the coordinator
// with the configured strategy order.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("app: open db: %w", err)
	}
	applied, err := sqlite.MigrateUp(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: migrate: %w", err)
	}
	for _, name := range applied {
		logger.Info("migration applied", zap.String("name", name))
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Bus:      eventbus.New(),
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Recorder = stats.NewRecorder(db, logger)

	chain, err := strategies.Build(cfg.Solver.Strategies, strategies.Deps{
		Provider:   NewProvider(cfg),
		Templates:  content.NewService(db),
		HTTPClient: &http.Client{Timeout: cfg.Solver.Timeout},
		Inference: strategies.InferenceOptions{
			Confidence:  cfg.Solver.Inference.Confidence,
			Temperature: cfg.Solver.Inference.Temperature,
			MaxTokens:   cfg.Solver.Inference.MaxTokens,
		},
		Reference: strategies.ReferenceOptions{
			URL:            cfg.Solver.Reference.URL,
			StepSelector:   cfg.Solver.Reference.StepSelector,
			MathSelector:   cfg.Solver.Reference.MathSelector,
			AnswerSelector: cfg.Solver.Reference.AnswerSelector,
			Confidence:     cfg.Solver.Reference.Confidence,
		},
		TemplateConfidence: cfg.Solver.Template.DefaultConfidence,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	a.Resolver = solver.NewCoordinator(chain, cfg.Solver.Coordinator(), solver.Observers{
		solver.NewLogObserver(logger),
		solver.NewMetricsObserver(a.Registry),
		solver.NewBusObserver(a.Bus),
	})
	logger.Info("solver ready",
		zap.Strings("strategies", cfg.Solver.Strategies),
		zap.String("mode", cfg.Solver.Mode),
		zap.Int("threshold", cfg.Solver.Threshold),
		zap.Duration("timeout", cfg.Solver.Timeout),
	)
	return a, nil
}

// NewProvider returns a router over the configured LLM backends. The
// configured provider is tried first and the other one is the fallback.
func NewProvider(cfg config.Config) *llm.Router {
	providers := map[string]llm.LLMProvider{
		"ollama":      llm.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaChatModel),
		"huggingface": llm.NewHuggingFaceProvider(cfg.HuggingFaceURL, cfg.HuggingFaceToken, cfg.HuggingFaceModels),
	}
	def := strings.ToLower(cfg.LLMProvider)
	order := []string{"ollama", "huggingface"}
	if def == "huggingface" {
		order = []string{"huggingface", "ollama"}
	}
	return llm.NewRouter(providers, def, order...)
}

// RecordStats consumes solver attempts from the bus until ctx ends.
func (a *App) RecordStats(ctx context.Context) {
	a.Recorder.Start(ctx, a.Bus)
}

// PruneStats deletes attempts older than retention every interval until ctx ends.
func (a *App) PruneStats(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := a.Recorder.Prune(ctx, now.Add(-retention))
			if err != nil {
				a.Logger.Warn("stats prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Logger.Info("stats pruned", zap.Int64("rows", n))
			}
		}
	}
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
