package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

var _ repository.SubjectRepository = (*subjectRepo)(nil)

type subjectRepo struct {
	pool *pgxpool.Pool
}

func NewSubjectRepo(pool *pgxpool.Pool) *subjectRepo {
	return &subjectRepo{pool: pool}
}

const subjectColumns = `id, name, last_evaluated_at, next_evaluation_date, eval_confidence, needs_manual_review, evaluation_pending, history, created_at, updated_at`

func (r *subjectRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subject) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	history, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	const q = `
INSERT INTO subjects (id, name, last_evaluated_at, next_evaluation_date, eval_confidence, needs_manual_review, evaluation_pending, history, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  last_evaluated_at = EXCLUDED.last_evaluated_at,
  next_evaluation_date = EXCLUDED.next_evaluation_date,
  eval_confidence = EXCLUDED.eval_confidence,
  needs_manual_review = EXCLUDED.needs_manual_review,
  evaluation_pending = EXCLUDED.evaluation_pending,
  history = EXCLUDED.history,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.Name, s.LastEvaluatedAt, s.NextEvaluationDate, s.EvalConfidence,
		s.NeedsManualReview, s.EvaluationPending, history, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

func (r *subjectRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subject, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	s, err := scanSubject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *subjectRepo) FindDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subject, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `
SELECT ` + subjectColumns + ` FROM subjects
WHERE next_evaluation_date IS NOT NULL
  AND next_evaluation_date <= $1
  AND evaluation_pending = false
ORDER BY next_evaluation_date ASC
LIMIT $2;`

	rows, err := pickRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due subjects: %w", err)
	}
	defer rows.Close()

	var out []*model.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subjectRepo) SetEvaluationPending(ctx context.Context, tx repository.Tx, id string, pending bool) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE subjects SET evaluation_pending = $2, updated_at = now() WHERE id = $1;`, id, pending)
	if err != nil {
		return fmt.Errorf("set evaluation_pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubject(row pgx.Row) (*model.Subject, error) {
	var s model.Subject
	var history []byte
	err := row.Scan(&s.ID, &s.Name, &s.LastEvaluatedAt, &s.NextEvaluationDate, &s.EvalConfidence,
		&s.NeedsManualReview, &s.EvaluationPending, &history, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &s, nil
}
