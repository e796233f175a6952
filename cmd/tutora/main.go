// Tutora - math tutoring chat backend.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/tutora/internal/api"
	"github.com/matiasleandrokruk/tutora/internal/app"
	"github.com/matiasleandrokruk/tutora/internal/domain/stats"
	"github.com/matiasleandrokruk/tutora/internal/domain/users"
	"github.com/matiasleandrokruk/tutora/internal/infra/config"
	"github.com/matiasleandrokruk/tutora/internal/infra/logging"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
	"github.com/matiasleandrokruk/tutora/internal/server"
	"github.com/matiasleandrokruk/tutora/internal/version"
	pkgauth "github.com/matiasleandrokruk/tutora/pkg/auth"
)

const statsPruneInterval = time.Hour

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("tutora", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		printHelp(out)
		return 2
	}
	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}
	if *showHelp {
		printHelp(out)
		return 0
	}

	cmd, rest := "serve", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "config: %v\n", err) //nolint:errcheck
		return 1
	}

	switch cmd {
	case "serve":
		err = serve(cfg)
	case "migrate":
		err = migrate(cfg, rest, out)
	case "promote":
		err = promote(cfg, rest, out)
	case "stats":
		err = printStats(cfg, rest, out)
	case "version":
		fmt.Fprintln(out, version.String()) //nolint:errcheck
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", cmd) //nolint:errcheck
		printHelp(out)
		return 2
	}
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", cmd, err) //nolint:errcheck
		return 1
	}
	return 0
}

func serve(cfg config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.RecordStats(ctx)
	go a.PruneStats(ctx, cfg.StatsRetention, statsPruneInterval)

	router := api.NewRouter(api.Deps{
		DB:                 a.DB,
		Resolver:           a.Resolver,
		Recorder:           a.Recorder,
		Logger:             logger,
		Gatherer:           a.Registry,
		FreeQuestionLimit:  cfg.FreeQuestionLimit,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srvCfg := server.DefaultConfig()
	srvCfg.Host, srvCfg.Port = cfg.Host, cfg.Port
	logger.Info("starting tutora", zap.String("version", version.Version))
	return server.NewServer(router, srvCfg, logger).Run(ctx)
}

// openDB opens the configured database without building the solver.
func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if _, err := sqlite.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(cfg config.Config, args []string, out io.Writer) error {
	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) > 0 && args[0] == "status" {
		status, err := sqlite.Status(db)
		if err != nil {
			return err
		}
		for _, m := range status {
			state := "pending"
			if m.Applied {
				state = "applied"
			}
			fmt.Fprintf(out, "%03d  %-8s %s\n", m.Version, state, m.Name) //nolint:errcheck
		}
		return nil
	}
	if len(args) > 0 && args[0] != "up" {
		return fmt.Errorf("unknown migrate action %q (want up or status)", args[0])
	}

	applied, err := sqlite.MigrateUp(db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date") //nolint:errcheck
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name) //nolint:errcheck
	}
	return nil
}

func promote(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "Email of the account to change")
	role := fs.String("role", string(pkgauth.RoleAdmin), "Role to grant (admin or student)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := users.NewService(db).SetRole(context.Background(), *email, pkgauth.Role(*role)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is now %s\n", *email, *role) //nolint:errcheck
	return nil
}

func printStats(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	window := fs.Duration("window", 0, "Only summarize attempts newer than this (e.g. 24h)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var since time.Time
	if *window > 0 {
		since = time.Now().Add(-*window)
	}
	sum, err := stats.NewRecorder(db, nil).Summary(context.Background(), since)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func printHelp(out io.Writer) {
	helpText := `Tutora - math tutoring chat backend

Usage:
  tutora [options] [command]

Options:
  --version    Show version information
  --help       Show this help message

Commands:
  serve                       Start the HTTP server (default)
  migrate [up|status]         Apply or list database migrations
  promote --email E [--role]  Grant the admin role to an account
  stats [--window 24h]        Print strategy statistics as JSON

Environment:
  TUTORA_DB_PATH, TUTORA_HOST, TUTORA_PORT, TUTORA_SOLVER_CONFIG,
  LLM_PROVIDER, OLLAMA_BASE_URL, HUGGINGFACE_TOKEN, JWT_SECRET

Examples:
  tutora --version
  TUTORA_PORT=9090 tutora serve
  tutora promote --email prof@example.com`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
