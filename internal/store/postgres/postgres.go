// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

// Constraints whose violation means a concurrent writer won, not a bad request.
const (
	versionKeyConstraint    = "prompt_versions_prompt_id_version_key"
	singleDefaultConstraint = "llm_providers_single_default"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ store.Store = (*Store)(nil)

type Store struct {
	*queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type queries struct {
	db dbtx
}

// mapErr translates driver errors into the store sentinels, keeping the
// original text for logs.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == versionKeyConstraint || pgErr.ConstraintName == singleDefaultConstraint {
				return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
			}
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.ConstraintName)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
