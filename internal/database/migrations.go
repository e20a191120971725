package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID serialises migrations when the API and worker start together.
const migrationLockID = 727_001

// RunMigrations applies every *.sql file in fsys that has not been recorded
// yet, in lexical order, each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("glob migration files: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		applied, err := applyMigration(ctx, pool, fsys, f)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("applied migration", "version", path.Base(f))
		}
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, file string) (bool, error) {
	version := path.Base(file)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx for %s: %w", version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)", version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	if exists {
		return false, nil
	}

	sql, err := fs.ReadFile(fsys, file)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", version, err)
	}

	if _, err := tx.Exec(ctx, string(sql), pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", version, err)
	}

	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", version, err)
	}
	return true, nil
}
