package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewTaskRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *taskRepo {
	return &taskRepo{pool: pool, tm: tm}
}

const taskColumns = `id, kind, status, payload, priority, not_before, attempts, last_attempt_at, result, last_error, created_at, completed_at`

// Task ids are ULIDs: sortable by creation time, which keeps queue listings
// readable without an extra sort column.
func newTaskID() string {
	return ulid.Make().String()
}

func (r *taskRepo) Enqueue(ctx context.Context, tx repository.Tx, task *model.Task) error {
	if task.ID == "" {
		task.ID = newTaskID()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.NotBefore.IsZero() {
		task.NotBefore = task.CreatedAt
	}

	const q = `
INSERT INTO tasks (id, kind, status, payload, priority, not_before, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		task.ID, task.Kind, task.Status, task.Payload, task.Priority, task.NotBefore, task.Attempts, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// DequeueBatch claims ready tasks in one atomic statement. SKIP LOCKED keeps
// concurrent workers from ever selecting the same row.
func (r *taskRepo) DequeueBatch(ctx context.Context, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
UPDATE tasks SET
  status = 'processing',
  attempts = attempts + 1,
  last_attempt_at = now()
WHERE id IN (
  SELECT id FROM tasks
  WHERE status = 'pending' AND not_before <= now()
  ORDER BY priority DESC, not_before ASC
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskColumns + `;`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *taskRepo) Complete(ctx context.Context, tx repository.Tx, id string, result json.RawMessage) error {
	return r.transition(ctx, tx, id, model.TaskStatusCompleted, func(ctx context.Context, tx repository.Tx) error {
		const q = `UPDATE tasks SET status = 'completed', result = $2, completed_at = now() WHERE id = $1;`
		_, err := execSQL(ctx, r.pool, tx, q, id, result)
		return err
	})
}

func (r *taskRepo) Fail(ctx context.Context, tx repository.Tx, id string, errText string) error {
	return r.transition(ctx, tx, id, model.TaskStatusFailed, func(ctx context.Context, tx repository.Tx) error {
		const q = `UPDATE tasks SET status = 'failed', last_error = $2 WHERE id = $1;`
		_, err := execSQL(ctx, r.pool, tx, q, id, errText)
		return err
	})
}

func (r *taskRepo) Reject(ctx context.Context, tx repository.Tx, id string, reason string) error {
	return r.transition(ctx, tx, id, model.TaskStatusRejected, func(ctx context.Context, tx repository.Tx) error {
		const q = `UPDATE tasks SET status = 'rejected', last_error = $2, completed_at = now() WHERE id = $1;`
		_, err := execSQL(ctx, r.pool, tx, q, id, reason)
		return err
	})
}

func (r *taskRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus) error {
	return r.transition(ctx, tx, id, status, func(ctx context.Context, tx repository.Tx) error {
		const q = `UPDATE tasks SET status = $2 WHERE id = $1;`
		_, err := execSQL(ctx, r.pool, tx, q, id, status)
		return err
	})
}

// transition locks the row, validates the state-machine edge and applies the
// update, all inside one transaction. When a tx handle is supplied the
// caller's transaction is reused instead.
func (r *taskRepo) transition(ctx context.Context, tx repository.Tx, id string, to model.TaskStatus, apply func(ctx context.Context, tx repository.Tx) error) error {
	run := func(ctx context.Context, tx repository.Tx) error {
		row, err := pickRow(ctx, r.pool, tx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE;`, id)
		if err != nil {
			return err
		}
		var current model.TaskStatus
		if err := row.Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return domain.ErrReadDatabaseRow
		}
		if !model.CanTransition(current, to) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, to)
		}
		return apply(ctx, tx)
	}

	if tx != nil {
		return run(ctx, tx)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, run)
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *taskRepo) List(ctx context.Context, tx repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = pickRows(ctx, r.pool, tx,
			`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT $1;`, limit)
	} else {
		rows, err = pickRows(ctx, r.pool, tx,
			`SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2;`, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *taskRepo) ReclaimStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	const q = `
UPDATE tasks SET
  status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
  last_error = CASE WHEN attempts >= $2 THEN 'abandoned by worker; max attempts reached' ELSE last_error END
WHERE status = 'processing' AND last_attempt_at < $1;`

	tag, err := r.pool.Exec(ctx, q, cutoff, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status, kind string
	err := row.Scan(&t.ID, &kind, &status, &t.Payload, &t.Priority, &t.NotBefore,
		&t.Attempts, &t.LastAttemptAt, &t.Result, &t.LastError, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = model.TaskKind(kind)
	t.Status = model.TaskStatus(status)
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*model.Task, error) {
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
