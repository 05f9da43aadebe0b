package repository

import (
	"context"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

type DocumentRepository interface {
	Save(ctx context.Context, tx Tx, d *model.DocumentSummary) error

	// FindByDate returns summaries of previously ingested documents for an
	// exact transaction date; the duplicate checker fuzzy-matches vendors
	// over this slice in memory.
	FindByDate(ctx context.Context, tx Tx, date string) ([]*model.DocumentSummary, error)
}
