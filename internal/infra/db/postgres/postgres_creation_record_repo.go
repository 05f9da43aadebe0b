package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

var _ repository.CreationRecordRepository = (*creationRecordRepo)(nil)

type creationRecordRepo struct {
	pool *pgxpool.Pool
}

func NewCreationRecordRepo(pool *pgxpool.Pool) *creationRecordRepo {
	return &creationRecordRepo{pool: pool}
}

// line_index is stored as -1 for document-level creations so the composite
// primary key stays non-null.
const docLevelLineIndex = -1

func lineIndexColumn(lineIndex *int) int {
	if lineIndex == nil {
		return docLevelLineIndex
	}
	return *lineIndex
}

func (r *creationRecordRepo) Find(ctx context.Context, tx repository.Tx, docID string, lineIndex *int, kind model.CreationKind) (*model.CreationRecord, error) {
	row, err := pickRow(ctx, r.pool, tx, `
SELECT source_document_id, line_index, kind, target_entity_id, metadata, created_at
FROM creation_records
WHERE source_document_id = $1 AND line_index = $2 AND kind = $3;`,
		docID, lineIndexColumn(lineIndex), kind)
	if err != nil {
		return nil, err
	}
	rec, err := scanCreationRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *creationRecordRepo) Record(ctx context.Context, tx repository.Tx, rec *model.CreationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
INSERT INTO creation_records (source_document_id, line_index, kind, target_entity_id, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`

	_, err = execSQL(ctx, r.pool, tx, q,
		rec.SourceDocumentID, lineIndexColumn(rec.LineIndex), rec.Kind, rec.TargetEntityID, meta, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("record creation: %w", err)
	}
	return nil
}

func (r *creationRecordRepo) ListForDocument(ctx context.Context, tx repository.Tx, docID string) ([]*model.CreationRecord, error) {
	rows, err := pickRows(ctx, r.pool, tx, `
SELECT source_document_id, line_index, kind, target_entity_id, metadata, created_at
FROM creation_records WHERE source_document_id = $1 ORDER BY created_at ASC;`, docID)
	if err != nil {
		return nil, fmt.Errorf("list creation records: %w", err)
	}
	defer rows.Close()

	var out []*model.CreationRecord
	for rows.Next() {
		rec, err := scanCreationRecord(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCreationRecord(row pgx.Row) (*model.CreationRecord, error) {
	var rec model.CreationRecord
	var lineIndex int
	var kind string
	var meta []byte
	err := row.Scan(&rec.SourceDocumentID, &lineIndex, &kind, &rec.TargetEntityID, &meta, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lineIndex != docLevelLineIndex {
		rec.LineIndex = &lineIndex
	}
	rec.Kind = model.CreationKind(kind)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}
