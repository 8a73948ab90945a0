// Package tx carries a *sql.Tx through context so the enrollment store can
// join several statements into one transaction without widening the Store
// interface. The re-enrollment flow (delete the previous record, insert the
// replacement) is its main consumer.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx attaches the transaction to the context. Store methods called with
// the returned context run their statements on tx instead of the pool.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From returns the transaction attached by WithTx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}
