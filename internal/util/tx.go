package util

import (
	"cloud.google.com/go/logging"
	"context"
	"fmt"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"sync/atomic"
	"time"
)

const (
	ShortReqTimeout = 30 * time.Second
	MedReqTimeout   = 5 * time.Minute
	LongReqTimeout  = 60 * time.Minute
)

var nextTxId uint32

// RunTx runs f inside a transaction on a freshly acquired pooled connection.
// The transaction is rolled back when f fails and committed otherwise.
func RunTx(ctx context.Context, pool *pgxpool.Pool, f func(ctx context.Context, tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to aquire connection: %w", err)
	}

	pid := conn.Conn().PgConn().PID()
	ctx = WithLoggerValue(ctx, "db_conn_pid", fmt.Sprintf("pid_%d", pid))
	Logf(ctx, logging.Debug, "acquired database connection [%d]", pid)

	defer func() {
		conn.Release()
		Logf(ctx, logging.Debug, "released database connection [%d]", pid)
	}()

	txid := atomic.AddUint32(&nextTxId, 1)
	ctx = WithLoggerValue(ctx, "db_conn_tx_id", fmt.Sprintf("tx_%d", txid))
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create transaction [%d/%d]: %w", pid, txid, err)
	}
	Logf(ctx, logging.Debug, "started new database transaction [%d -> %d]", pid, txid)

	err = f(ctx, tx)
	if err != nil {
		Logf(ctx, logging.Debug, "rolling back database transaction [%d -> %d]", pid, txid)
		errRollback := tx.Rollback(ctx)
		if errRollback != nil {
			Logf(ctx, logging.Warning, "failed to rollback database transaction [%d -> %d]: %v", pid, txid, errRollback)
		}
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit database transaction [%d -> %d]: %w", pid, txid, err)
	}

	Logf(ctx, logging.Debug, "successfully committed database transaction [%d -> %d]", pid, txid)
	return nil
}

// WithSavePoint runs op between SAVEPOINT sp and RELEASE SAVEPOINT sp, rolling back to the
// savepoint when op fails so the surrounding transaction stays usable.
func WithSavePoint(ctx context.Context, tx pgx.Tx, sp string, op func() error) (err error) {
	_, err = tx.Exec(ctx, `SAVEPOINT `+sp)
	if err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", sp, err)
	}

	defer func() {
		if err == nil {
			_, err = tx.Exec(ctx, `RELEASE SAVEPOINT `+sp)
			if err != nil {
				err = fmt.Errorf("failed to release savepoint %s: %w", sp, err)
			}
			return
		}
		_, err2 := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT `+sp)
		if err2 != nil {
			err = fmt.Errorf("failed to rollback to savepoint %s: %v. %w", sp, err2, err)
		}
	}()

	return op()
}
