package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

func (r *documentRepo) Save(ctx context.Context, tx repository.Tx, d *model.DocumentSummary) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO documents (id, task_id, vendor_name, tx_date, total_amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  vendor_name = EXCLUDED.vendor_name,
  tx_date = EXCLUDED.tx_date,
  total_amount = EXCLUDED.total_amount;`

	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.TaskID, d.VendorName, d.Date, d.TotalAmount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (r *documentRepo) FindByDate(ctx context.Context, tx repository.Tx, date string) ([]*model.DocumentSummary, error) {
	rows, err := pickRows(ctx, r.pool, tx, `
SELECT id, task_id, vendor_name, tx_date, total_amount, created_at
FROM documents WHERE tx_date = $1;`, date)
	if err != nil {
		return nil, fmt.Errorf("find documents by date: %w", err)
	}
	defer rows.Close()

	var out []*model.DocumentSummary
	for rows.Next() {
		var d model.DocumentSummary
		if err := rows.Scan(&d.ID, &d.TaskID, &d.VendorName, &d.Date, &d.TotalAmount, &d.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
