package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

var _ adapter.EntitySink = (*entitySink)(nil)

// entitySink writes materialized entities into the entities table. It runs
// on the caller's transaction so the entity and its ledger row commit
// together.
type entitySink struct {
	pool *pgxpool.Pool
}

func NewEntitySink(pool *pgxpool.Pool) *entitySink {
	return &entitySink{pool: pool}
}

func (s *entitySink) CreateEntity(ctx context.Context, tx repository.Tx, kind model.CreationKind, fields map[string]any) (string, error) {
	id := ulid.Make().String()
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal entity fields: %w", err)
	}

	const q = `INSERT INTO entities (id, kind, fields) VALUES ($1,$2,$3);`
	if _, err := execSQL(ctx, s.pool, tx, q, id, kind, payload); err != nil {
		return "", fmt.Errorf("create entity: %w", err)
	}
	return id, nil
}
