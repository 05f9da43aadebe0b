package postgres

import (
	"context"
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

var _ repository.ScheduleRepository = (*scheduleRepo)(nil)

type scheduleRepo struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) *scheduleRepo {
	return &scheduleRepo{pool: pool}
}

const scheduleColumns = `id, subject_id, scheduled_date, status, attempts, result, last_error, created_at, updated_at`

// Save upserts on the partial unique index over (subject_id) WHERE
// status = 'pending': a subject's pending entry is moved, never duplicated.
func (r *scheduleRepo) Save(ctx context.Context, tx repository.Tx, e *model.ScheduleEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.ScheduledDate = model.Day(e.ScheduledDate)

	const q = `
INSERT INTO evaluation_schedule (id, subject_id, scheduled_date, status, attempts, result, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (subject_id) WHERE status = 'pending' DO UPDATE SET
  scheduled_date = EXCLUDED.scheduled_date,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.SubjectID, e.ScheduledDate, e.Status, e.Attempts, e.Result, e.LastError, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save schedule entry: %w", err)
	}
	return nil
}

func (r *scheduleRepo) FindPendingBySubject(ctx context.Context, tx repository.Tx, subjectID string) (*model.ScheduleEntry, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+scheduleColumns+` FROM evaluation_schedule WHERE subject_id = $1 AND status = 'pending';`, subjectID)
	if err != nil {
		return nil, err
	}
	e, err := scanScheduleEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *scheduleRepo) CountForDay(ctx context.Context, tx repository.Tx, day time.Time) (repository.DayCounts, error) {
	var c repository.DayCounts
	row, err := pickRow(ctx, r.pool, tx, `
SELECT
  count(*) FILTER (WHERE status IN ('pending', 'processing')),
  count(*) FILTER (WHERE status = 'completed')
FROM evaluation_schedule WHERE scheduled_date = $1;`, model.Day(day))
	if err != nil {
		return c, err
	}
	if err := row.Scan(&c.Pending, &c.Completed); err != nil {
		return c, domain.ErrReadDatabaseRow
	}
	return c, nil
}

// ClaimForDay mirrors the task queue claim: one atomic statement, SKIP
// LOCKED, FIFO by scheduled_date then creation order.
func (r *scheduleRepo) ClaimForDay(ctx context.Context, day time.Time, limit int) ([]*model.ScheduleEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
UPDATE evaluation_schedule SET
  status = 'processing',
  attempts = attempts + 1,
  updated_at = now()
WHERE id IN (
  SELECT id FROM evaluation_schedule
  WHERE status = 'pending' AND scheduled_date <= $1
  ORDER BY scheduled_date ASC, created_at ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + scheduleColumns + `;`

	rows, err := r.pool.Query(ctx, q, model.Day(day), limit)
	if err != nil {
		return nil, fmt.Errorf("claim schedule entries: %w", err)
	}
	defer rows.Close()

	var out []*model.ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *scheduleRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.ScheduleStatus, result, errText string) error {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE evaluation_schedule SET status = $2, result = $3, last_error = $4, updated_at = now()
WHERE id = $1;`, id, status, result, errText)
	if err != nil {
		return fmt.Errorf("finish schedule entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanScheduleEntry(row pgx.Row) (*model.ScheduleEntry, error) {
	var e model.ScheduleEntry
	var status string
	err := row.Scan(&e.ID, &e.SubjectID, &e.ScheduledDate, &status, &e.Attempts,
		&e.Result, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = model.ScheduleStatus(status)
	return &e, nil
}
