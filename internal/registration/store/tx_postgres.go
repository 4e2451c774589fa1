package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	txcontext "raceday/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// PostgresTx runs units of work in a database transaction carried through ctx.
// Nested calls join the outer transaction.
type PostgresTx struct {
	db      *sql.DB
	store   *PostgresStore
	timeout time.Duration
}

// NewPostgresTx builds a runner; a zero timeout selects the default.
func NewPostgresTx(db *sql.DB, store *PostgresStore, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresTx{db: db, store: store, timeout: timeout}
}

var _ ports.TxRunner = (*PostgresTx)(nil)

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx, t.store)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
