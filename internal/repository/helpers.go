package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ffa-tycoon/ffa-tycoon/internal/database"
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition.
//
// Usage:
//
//	var item model.Item
//	err := r.db.GetContext(ctx, &item, query, args...)
//	return HandleNotFound(&item, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Transactor runs fn with a park repository bound to a single transaction.
type Transactor func(ctx context.Context, fn func(ParkRepository) error) error

// NewTransactor binds repo to transactions opened on db.
func NewTransactor(db *database.DB, repo ParkRepository) Transactor {
	return func(ctx context.Context, fn func(ParkRepository) error) error {
		return db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return fn(repo.WithTx(tx))
		})
	}
}
