// Package store holds the SQL for products, carts and orders. Every
// repository runs against a Querier so the same code serves plain reads on
// the pool and writes inside a checkout transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
)

type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
)
