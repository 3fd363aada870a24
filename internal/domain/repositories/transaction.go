package repositories

import "context"

// TxFn is a function that runs within a transaction.
type TxFn func(ctx context.Context) error

// TransactionManager handles database transactions. Repositories pick the
// transaction up from the context, so a TxFn can call several repository
// methods atomically.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
