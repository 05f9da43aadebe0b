// Package sched runs the periodic evaluation scheduling loop.
package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/infra/redis"
	"github.com/Gumbees/homebase-intake/internal/usecase"
)

const (
	lockKey    = "sched:evaluation_run"
	runTimeout = 5 * time.Minute
)

// Worker periodically schedules due subjects and drains today's evaluation
// queue. A Redis lock makes the run single-flight across replicas; losing
// the lock is not an error, another replica is doing the work.
type Worker struct {
	evals    usecase.EvaluationUseCase
	locker   redis.Locker
	interval time.Duration
	batch    int
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(evals usecase.EvaluationUseCase, locker redis.Locker, interval time.Duration, batch int, logger *zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	if batch <= 0 {
		batch = usecase.DefaultDailyLimit
	}
	return &Worker{
		evals:    evals,
		locker:   locker,
		interval: interval,
		batch:    batch,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Start begins the loop in a background goroutine. Calling Start twice has
// no effect.
func (w *Worker) Start(parentCtx context.Context) {
	if w.ctx != nil {
		return
	}
	w.ctx, w.cancel = context.WithCancel(parentCtx)
	go w.loop()
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Worker) loop() {
	ticker := time.NewTicker(w.interval)
	defer func() {
		ticker.Stop()
		close(w.done)
	}()

	w.log.Info().Dur("interval", w.interval).Msg("evaluation worker started")
	for {
		select {
		case <-w.ctx.Done():
			w.log.Info().Msg("evaluation worker stopping")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(w.ctx, runTimeout)
			w.RunOnce(runCtx)
			cancel()
		}
	}
}

// RunOnce performs one schedule-and-process pass. Also invoked by the manual
// trigger endpoint; safe to call repeatedly, an empty due set is a no-op.
func (w *Worker) RunOnce(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, lockKey, runTimeout)
		if err != nil {
			if !errors.Is(err, domain.ErrLockNotAcquired) {
				w.log.Error().Err(err).Msg("scheduler lock error")
			}
			return
		}
		defer func() {
			if err := w.locker.Unlock(ctx, lockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("scheduler unlock failed")
			}
		}()
	}

	report, err := w.evals.ScheduleBatch(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("scheduling run failed")
	} else if report.Due > 0 {
		w.log.Info().
			Int("today", report.ScheduledToday).
			Int("overflowed", report.Overflowed).
			Msg("scheduled due evaluations")
	}

	// A scheduling failure must not block processing entries already on the
	// calendar.
	n, err := w.evals.ProcessDailyQueue(ctx, time.Now(), w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("daily queue processing failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("processed", n).Msg("evaluations processed")
	}
}
