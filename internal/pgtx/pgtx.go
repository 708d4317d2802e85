// Package pgtx runs Postgres transactions whose row-lock waits are bounded.
package pgtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrContention marks a transaction that lost a lock race or timed out
// waiting for one. The same request may succeed if retried.
var ErrContention = errors.New("lock contention, retry later")

// Postgres error codes that mean "lost a race, try again".
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
)

// Run executes fn in one transaction. When lockTimeout is positive every lock
// wait inside the transaction is capped by it. Contention errors come back
// wrapped with ErrContention.
func Run(ctx context.Context, db *sql.DB, lockTimeout time.Duration, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if lockTimeout > 0 {
		// SET LOCAL does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Classify(err)
		}
	}

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	return Classify(tx.Commit())
}

// IsContention reports whether err carries one of the Postgres codes for a
// lock timeout, deadlock, serialization failure or canceled statement.
func IsContention(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeQueryCanceled:
		return true
	}
	return false
}

// Classify wraps contention errors with ErrContention and returns the rest unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrContention) || !IsContention(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrContention, err)
}
