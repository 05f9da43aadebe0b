package repository

import (
	"context"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

// CreationRecordRepository is the idempotency ledger. Uniqueness of the
// composite key (source document, line index, kind) is enforced by the
// store, not by application locks.
type CreationRecordRepository interface {
	Find(ctx context.Context, tx Tx, docID string, lineIndex *int, kind model.CreationKind) (*model.CreationRecord, error)

	// Record inserts a ledger row. A key collision returns
	// domain.ErrAlreadyExists and writes nothing.
	Record(ctx context.Context, tx Tx, rec *model.CreationRecord) error

	ListForDocument(ctx context.Context, tx Tx, docID string) ([]*model.CreationRecord, error)
}
