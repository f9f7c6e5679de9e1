package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

const pairLockQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

type txKey struct{}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn returns the transaction carried by ctx, or db outside one.
func conn(ctx context.Context, db *sql.DB) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// TxManager manages database transactions
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTx runs fn inside a transaction made available to repositories
// through the ctx passed to fn. A ctx already carrying a transaction joins
// it. The transaction is rolled back if fn returns an error.
func (tm *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w, rb err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithPairLock runs fn in a transaction holding an advisory lock on the
// (kind, actor, target) triple. The lock is released at commit or rollback,
// so flips of one pair are serialised across every replica.
func (tm *TxManager) WithPairLock(ctx context.Context, kind domain.RelationKind, actorID, targetID int64, fn func(ctx context.Context) error) error {
	return tm.WithTx(ctx, func(ctx context.Context) error {
		key := pairLockKey(kind, actorID, targetID)
		if _, err := conn(ctx, tm.db).ExecContext(ctx, pairLockQuery, key); err != nil {
			return fmt.Errorf("failed to acquire pair lock: %w", err)
		}
		return fn(ctx)
	})
}

func pairLockKey(kind domain.RelationKind, actorID, targetID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, actorID, targetID)
}
