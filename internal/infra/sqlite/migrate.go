// Migration system for the Tutora SQLite store.
// SQL files are embedded into the binary; applied versions are tracked in
// schema_migrations so MigrateUp is safe to call on every start.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Migration describes one embedded migration file.
type Migration struct {
	Version int
	Name    string // e.g. "001_init_schema.up.sql"
	Applied bool
}

// MigrateUp applies all pending *.up.sql migrations in order, one transaction each.
// It returns the names of the migrations it applied.
func MigrateUp(db *sql.DB) ([]string, error) {
	status, files, err := load(db)
	if err != nil {
		return nil, err
	}

	var applied []string
	for i, m := range status {
		if m.Applied {
			continue
		}
		if applyErr := applyMigration(db, m.Version, m.Name, files[i].sql); applyErr != nil {
			return applied, fmt.Errorf("migrate: apply %s: %w", m.Name, applyErr)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// Status lists every embedded migration and whether it has been applied.
func Status(db *sql.DB) ([]Migration, error) {
	status, _, err := load(db)
	return status, err
}

// MigrationVersion returns the highest migration version number currently applied.
// Returns 0 if no migrations have been applied yet.
func MigrationVersion(db *sql.DB) (int, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return 0, fmt.Errorf("migrate: ensure migrations table: %w", err)
	}

	var version int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: query version: %w", err)
	}
	return version, nil
}

// --- internal ---

type migrationFile struct {
	name string
	sql  string
}

func load(db *sql.DB) ([]Migration, []migrationFile, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, nil, fmt.Errorf("migrate: ensure migrations table: %w", err)
	}
	files, err := loadMigrationFiles()
	if err != nil {
		return nil, nil, fmt.Errorf("migrate: load files: %w", err)
	}
	done, err := appliedVersions(db)
	if err != nil {
		return nil, nil, fmt.Errorf("migrate: list applied: %w", err)
	}

	status := make([]Migration, len(files))
	for i, f := range files {
		v := versionFromFilename(f.name)
		status[i] = Migration{Version: v, Name: f.name, Applied: done[v]}
	}
	return status, files, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER NOT NULL PRIMARY KEY,
			name        TEXT    NOT NULL,
			applied_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

// loadMigrationFiles reads all *.up.sql files from the embedded FS, sorted by name.
func loadMigrationFiles() ([]migrationFile, error) {
	var files []migrationFile

	err := fs.WalkDir(migrations, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}
		content, err := migrations.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, migrationFile{name: d.Name(), sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})
	return files, nil
}

// versionFromFilename extracts the numeric prefix: "003_audit_and_stats.up.sql" → 3.
func versionFromFilename(name string) int {
	var version int
	if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
		return 0
	}
	return version
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// applyMigration executes a single migration SQL in a transaction and records it.
func applyMigration(db *sql.DB, version int, name, sqlContent string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, execErr := tx.Exec(sqlContent); execErr != nil {
		return fmt.Errorf("exec SQL: %w", execErr)
	}
	if _, execErr := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		version, name,
	); execErr != nil {
		return fmt.Errorf("record migration: %w", execErr)
	}
	return tx.Commit()
}
