package frost

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

type transactionKey struct{}

// withTransaction stores the gorm transaction of a write in ctx.
func withTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

func gormTransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(transactionKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// TransactionFromContext returns the *sql.Tx of the write that is running.
// Change hooks receive a context carrying it, so their own statements commit
// or roll back together with the write.
func TransactionFromContext(ctx context.Context) (*sql.Tx, bool) {
	gormTx, ok := gormTransactionFromContext(ctx)
	if !ok {
		return nil, false
	}
	if gormTx.Statement != nil && gormTx.Statement.ConnPool != nil {
		if tx, ok := gormTx.Statement.ConnPool.(*sql.Tx); ok {
			return tx, true
		}
	}
	return nil, false
}

// runInTransaction calls fn inside a transaction. A transaction already
// stored in ctx is joined instead of starting a new one.
func (s *Service) runInTransaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if tx, ok := gormTransactionFromContext(ctx); ok {
		return fn(ctx, tx.WithContext(ctx))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, ok := tx.Statement.ConnPool.(*sql.Tx); !ok {
			return errors.New("failed to extract *sql.Tx from gorm transaction")
		}
		return fn(withTransaction(ctx, tx), tx)
	})
}

// Transaction runs fn in a database transaction. Inserts, updates, deletes
// and queries made with the context passed to fn take part in it, and any
// error returned by fn rolls all of them back.
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.runInTransaction(ctx, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
}
