package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTxAttempts bounds retries of a transaction that lost a lock race
const maxTxAttempts = 3

// DBExecutor hands repositories either the pool or an open transaction
type DBExecutor struct {
	pool *pgxpool.Pool
}

func NewDBExecutor(pool *pgxpool.Pool) *DBExecutor {
	return &DBExecutor{pool: pool}
}

// GetDB is used for statements that need no transaction
func (db *DBExecutor) GetDB() *pgxpool.Pool {
	return db.pool
}

// WithTransaction runs fn in a read-committed transaction. Row locks taken
// with FOR UPDATE are held until fn returns. Two callbacks for one merchant
// lock the same balance row, so a deadlock or serialization failure reruns
// fn from the start; fn must not have side effects outside tx.
func (db *DBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.attempt(ctx, fn)
		if !isRetryableTxError(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("ledger transaction gave up after %d attempts: %w", maxTxAttempts, err)
}

func (db *DBExecutor) attempt(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback after a failed commit is a no-op; pgx reports ErrTxClosed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) && err != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	committed = true
	return nil
}
