package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must accept nil for the
// non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside a database transaction, passing the
// handle through so multiple repository calls (entity write + ledger write)
// commit or roll back together.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
