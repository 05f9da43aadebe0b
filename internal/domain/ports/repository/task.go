package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

// TaskRepository is the durable work queue. Deduplication is not this
// layer's job; the creation ledger suppresses duplicate side effects.
type TaskRepository interface {
	// Enqueue persists a new pending task and assigns its id when empty.
	Enqueue(ctx context.Context, tx Tx, task *model.Task) error

	// DequeueBatch atomically claims up to limit ready tasks: pending,
	// not_before <= now, ordered by priority desc then not_before asc.
	// Claiming stamps last_attempt_at, increments attempts and moves the
	// task to processing so concurrent workers never double-claim.
	DequeueBatch(ctx context.Context, limit int) ([]*model.Task, error)

	Complete(ctx context.Context, tx Tx, id string, result json.RawMessage) error
	Fail(ctx context.Context, tx Tx, id string, errText string) error

	// SetStatus applies a state-machine transition (review parking,
	// human decisions). Invalid edges return domain.ErrInvalidTransition.
	SetStatus(ctx context.Context, tx Tx, id string, status model.TaskStatus) error

	// Reject moves a review task to rejected and stores the reason.
	Reject(ctx context.Context, tx Tx, id string, reason string) error

	FindByID(ctx context.Context, tx Tx, id string) (*model.Task, error)
	List(ctx context.Context, tx Tx, status model.TaskStatus, limit int) ([]*model.Task, error)

	// ReclaimStale returns tasks stuck in processing longer than olderThan
	// to pending, or fails them once attempts reach maxAttempts. Returns
	// the number of tasks touched.
	ReclaimStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error)
}
