package repositories

import "context"

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager runs a unit of work atomically. Repositories called with
// the context passed to fn take part in the transaction.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
