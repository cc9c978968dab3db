package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	apperrors "tessera/internal/errors"

	"github.com/lib/pq"
)

// writerLockKey is the advisory lock every write unit holds, so write units
// run one at a time across all API processes.
const writerLockKey int64 = 0x5445535345524131

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WithTx runs fn in a write transaction. The writer lock is taken before fn
// runs; waiting longer than the lock timeout yields errors.ErrContention.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ClassifyError(fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// SET LOCAL does not accept bind parameters.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())); err != nil {
		return ClassifyError(fmt.Errorf("set lock_timeout: %w", err))
	}
	if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", writerLockKey); err != nil {
		return ClassifyError(fmt.Errorf("acquire writer lock: %w", err))
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return ClassifyError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// WithReadTx runs fn in a read-only repeatable-read transaction.
func (db *DB) WithReadTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return ClassifyError(fmt.Errorf("begin read: %w", err))
	}
	defer func() {
		// Rollback after a successful commit is a no-op.
		_ = tx.Rollback()
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return ClassifyError(fmt.Errorf("commit read: %w", err))
	}
	return nil
}

// Postgres SQLSTATE codes treated as transient contention.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// IsContention reports whether err is a lock timeout, deadlock or
// serialization failure.
func IsContention(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// IsUniqueViolation reports whether err violates the named unique index.
// An empty name matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// ClassifyError maps contention to errors.ErrContention and leaves
// everything else untouched.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if IsContention(err) || stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.ErrContention, err)
	}
	return err
}
