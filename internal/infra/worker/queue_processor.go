package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
	"github.com/Gumbees/homebase-intake/internal/infra/metrics"
)

// Handler processes one claimed task and returns its result payload.
type Handler func(ctx context.Context, task *model.Task) (json.RawMessage, error)

type ProcessorConfig struct {
	Interval    time.Duration
	BatchSize   int
	StaleAfter  time.Duration
	MaxAttempts int
}

func (c *ProcessorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Processor drives the durable queue: each cycle reclaims abandoned tasks,
// claims a batch and hands every task to its kind's handler through the
// pool. Review tasks are human-driven and never pass through here; a
// document_review that somehow lands in pending is parked back into review
// instead of being auto-advanced.
type Processor struct {
	tasks    repository.TaskRepository
	notifier adapter.Notifier
	handlers map[model.TaskKind]Handler
	cfg      ProcessorConfig
	log      *zerolog.Logger
}

func NewProcessor(tasks repository.TaskRepository, notifier adapter.Notifier, cfg ProcessorConfig, logger *zerolog.Logger) *Processor {
	cfg.applyDefaults()
	return &Processor{
		tasks:    tasks,
		notifier: notifier,
		handlers: map[model.TaskKind]Handler{},
		cfg:      cfg,
		log:      logger,
	}
}

// Register binds a handler to a task kind. Not safe to call after Start.
func (p *Processor) Register(kind model.TaskKind, h Handler) {
	p.handlers[kind] = h
}

// Start runs the periodic cycle until ctx is cancelled. Run in a goroutine.
func (p *Processor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().
		Dur("interval", p.cfg.Interval).
		Int("batch_size", p.cfg.BatchSize).
		Msg("queue processor started")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("queue processor stopping")
			return
		case <-ticker.C:
			p.runCycle(ctx, pool)
		}
	}
}

func (p *Processor) runCycle(ctx context.Context, pool *Pool) {
	if n, err := p.tasks.ReclaimStale(ctx, p.cfg.StaleAfter, p.cfg.MaxAttempts); err != nil {
		p.log.Error().Err(err).Msg("stale reclaim failed")
	} else if n > 0 {
		metrics.AddTasksReclaimed(n)
		p.log.Warn().Int("tasks", n).Msg("reclaimed stale processing tasks")
	}

	batch, err := p.tasks.DequeueBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("dequeue batch failed")
		return
	}
	for _, t := range batch {
		t := t
		if err := pool.Submit(func(ctx context.Context) error {
			p.processTask(ctx, t)
			return nil
		}); err != nil {
			// Saturated pool: leave the task to the stale reclaim pass.
			p.log.Warn().Err(err).Str("task_id", t.ID).Msg("could not submit task to pool")
		}
	}
}

// Drain claims and processes up to n tasks inline. Safe to invoke repeatedly;
// an empty queue is a no-op. Used by the manual trigger endpoint.
func (p *Processor) Drain(ctx context.Context, n int) (int, error) {
	batch, err := p.tasks.DequeueBatch(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("drain dequeue: %w", err)
	}
	for _, t := range batch {
		p.processTask(ctx, t)
	}
	return len(batch), nil
}

func (p *Processor) processTask(ctx context.Context, t *model.Task) {
	start := time.Now()

	if t.Kind == model.TaskKindDocumentReview {
		if err := p.tasks.SetStatus(ctx, nil, t.ID, model.TaskStatusPendingReview); err != nil {
			p.log.Error().Err(err).Str("task_id", t.ID).Msg("could not park review task")
		}
		return
	}

	h, ok := p.handlers[t.Kind]
	if !ok {
		p.fail(ctx, t, fmt.Errorf("%w: no handler for kind %q", domain.ErrInvalidArgument, t.Kind))
		return
	}

	result, err := h(ctx, t)
	if err != nil {
		p.fail(ctx, t, err)
		return
	}
	if err := p.tasks.Complete(ctx, nil, t.ID, result); err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("could not complete task")
		return
	}
	metrics.IncTaskProcessed(string(t.Kind), string(model.TaskStatusCompleted))
	p.log.Info().
		Str("task_id", t.ID).
		Str("kind", string(t.Kind)).
		Dur("duration", time.Since(start)).
		Msg("task completed")
}

func (p *Processor) fail(ctx context.Context, t *model.Task, cause error) {
	if err := p.tasks.Fail(ctx, nil, t.ID, cause.Error()); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("could not mark task failed")
	}
	metrics.IncTaskProcessed(string(t.Kind), string(model.TaskStatusFailed))
	p.log.Error().Err(cause).Str("task_id", t.ID).Str("kind", string(t.Kind)).Msg("task failed")

	if p.notifier != nil {
		go p.notifier.Notify(context.WithoutCancel(ctx), adapter.NotificationEvent{
			Kind:    "task_failed",
			TaskID:  t.ID,
			Message: fmt.Sprintf("Task %s (%s) failed: %v", t.ID, t.Kind, cause),
		})
	}
}
