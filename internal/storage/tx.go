package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// RunInTransaction runs fn inside a transaction scope.
//
// When existing is non-nil the scope composes with the caller's transaction:
// fn runs inside it and the inner scope neither commits nor rolls back, so
// nested calls never double-commit. Otherwise a new transaction is begun and
// committed on success or rolled back on failure; the rollback never masks
// fn's original error.
func RunInTransaction(ctx context.Context, db *sql.DB, existing *sql.Tx, fn func(tx *sql.Tx) error) error {
	if existing != nil {
		return fn(existing)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
