package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is an open transaction. It carries the same record methods as DB, so
// callers can batch writes without a second API.
type Tx struct {
	*sql.Tx
}

// BeginTx opens a transaction on the underlying pool.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{Tx: tx}, nil
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise; fn's error is returned unchanged unless the rollback
// itself fails.
//
//	err := db.WithTx(ctx, func(tx *database.Tx) error {
//	    return tx.UpsertDay(ctx, &day)
//	})
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
