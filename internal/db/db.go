package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	stdfs "io/fs"
	"regexp"
	"sort"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "dispatch.db"

// Open opens (or creates) the SQLite database at path and applies pending migrations.
// Migrations are versioned .sql files under internal/db/migrations:
//
//	0001_name.up.sql / 0001_name.down.sql
//
// The pool is limited to a single connection so that transactions serialize;
// drone rows additionally carry a version column for optimistic locking.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(1)
	d.SetMaxIdleConns(1)
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	// journal_mode may not be supported in some contexts (e.g., in-memory). Ignore errors.
	_, _ = d.Exec(`PRAGMA journal_mode=WAL`)
	for _, pragma := range []string{`PRAGMA busy_timeout=5000`, `PRAGMA foreign_keys=ON`} {
		if _, err := d.Exec(pragma); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := applyMigrations(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// AppliedVersions returns the applied migration versions in ascending order.
func AppliedVersions(ctx context.Context, d *sql.DB) ([]int, error) {
	got, err := appliedVersions(ctx, d)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(got))
	for v := range got {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// RollbackLast reverts the newest applied migration with its down script.
// It returns the reverted version, or 0 when the schema is empty.
func RollbackLast(d *sql.DB) (int, error) {
	if d == nil {
		return 0, errors.New("nil db")
	}
	ctx := context.Background()
	if err := ensureMigrationsTable(ctx, d); err != nil {
		return 0, err
	}
	var version int
	err := d.QueryRowContext(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	migs, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	m, ok := migs[version]
	if !ok || m.downFile == "" {
		return 0, fmt.Errorf("no down script for schema version %04d", version)
	}
	if err := m.run(ctx, d, m.downFile, `DELETE FROM schema_migrations WHERE version = ?`); err != nil {
		return 0, fmt.Errorf("rollback %s: %w", m, err)
	}
	return version, nil
}

// Schema scripts: 0001 creates the drone fleet, 0002 the dispatch history.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version  int
	name     string
	upFile   string
	downFile string
}

func (m migration) String() string { return fmt.Sprintf("%04d_%s", m.version, m.name) }

// run executes one script and its schema_migrations bookkeeping in a single
// transaction, so a failed script leaves the version unrecorded.
func (m migration) run(ctx context.Context, d *sql.DB, file, bookkeeping string) error {
	script, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, m.version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var migFileRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.(up|down)\.sql$`)

// loadMigrations indexes the embedded scripts by version. Files not named
// NNNN_name.up.sql or NNNN_name.down.sql are ignored.
func loadMigrations() (map[int]migration, error) {
	list, err := stdfs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	entries := map[int]migration{}
	for _, de := range list {
		parts := migFileRe.FindStringSubmatch(de.Name())
		if de.IsDir() || parts == nil {
			continue
		}
		ver, _ := strconv.Atoi(parts[1])
		item := entries[ver]
		item.version, item.name = ver, parts[2]
		if parts[3] == "up" {
			item.upFile = "migrations/" + de.Name()
		} else {
			item.downFile = "migrations/" + de.Name()
		}
		entries[ver] = item
	}
	return entries, nil
}

func ensureMigrationsTable(ctx context.Context, d *sql.DB) error {
	_, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version INTEGER PRIMARY KEY,
        applied_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
    )`)
	return err
}

func appliedVersions(ctx context.Context, d *sql.DB) (map[int]bool, error) {
	if err := ensureMigrationsTable(ctx, d); err != nil {
		return nil, err
	}
	rows, err := d.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	got := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		got[v] = true
	}
	return got, rows.Err()
}

// applyMigrations brings the schema up to the newest embedded version,
// oldest first, skipping versions already recorded.
func applyMigrations(d *sql.DB) error {
	ctx := context.Background()
	migs, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, d)
	if err != nil {
		return err
	}
	versions := make([]int, 0, len(migs))
	for v := range migs {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	for _, v := range versions {
		m := migs[v]
		if applied[v] {
			continue
		}
		if m.upFile == "" {
			return fmt.Errorf("schema version %04d has no up script", v)
		}
		if err := m.run(ctx, d, m.upFile, `INSERT INTO schema_migrations(version) VALUES(?)`); err != nil {
			return fmt.Errorf("migrate %s: %w", m, err)
		}
	}
	return nil
}
