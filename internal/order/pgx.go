package order

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anurag-sv/bazaar-api/internal/store"
)

// PGXRunner runs checkout transactions on a pgx pool.
type PGXRunner struct {
	Pool *pgxpool.Pool
}

// RunTx starts a transaction, hands a transaction-scoped query set to fn,
// and commits unless fn fails.
func (r PGXRunner) RunTx(ctx context.Context, fn func(q Querier) error) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		return fn(store.New(tx))
	})
}
