// File: internal/usecase/evaluation_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
	"github.com/Gumbees/homebase-intake/internal/infra/metrics"
)

// Compile-time check
var _ EvaluationUseCase = (*evaluationUC)(nil)

const (
	// DefaultDailyLimit caps how many evaluations land on one calendar day.
	DefaultDailyLimit = 30

	// overflowHorizonDays bounds the forward walk when today is full.
	overflowHorizonDays = 365

	// dueBatchLimit bounds how many due subjects one scheduling run considers.
	dueBatchLimit = 500
)

// ScheduleReport summarizes one scheduling run.
type ScheduleReport struct {
	Due            int
	ScheduledToday int
	Overflowed     int
	Unplaced       int
}

type EvaluationUseCase interface {
	// FindDue lists subjects whose next evaluation date has arrived and that
	// hold no pending schedule entry.
	FindDue(ctx context.Context, limit int) ([]*model.Subject, error)

	// ScheduleBatch assigns due subjects to calendar days, filling today up
	// to the daily limit and walking forward day by day for the rest. A
	// subject already holding a pending entry is moved in place, never
	// duplicated, so repeated runs are idempotent no-ops.
	ScheduleBatch(ctx context.Context) (ScheduleReport, error)

	// ProcessDailyQueue claims up to limit pending entries for the given day
	// (FIFO by scheduled date) and runs the evaluator over each. Returns the
	// number of entries processed.
	ProcessDailyQueue(ctx context.Context, day time.Time, limit int) (int, error)
}

type evaluationUC struct {
	subjects   repository.SubjectRepository
	schedule   repository.ScheduleRepository
	evaluator  adapter.SubjectEvaluator
	notifier   adapter.Notifier
	tm         repository.TransactionManager
	dailyLimit int
	now        func() time.Time
	log        *zerolog.Logger
}

func NewEvaluationUseCase(
	subjects repository.SubjectRepository,
	schedule repository.ScheduleRepository,
	evaluator adapter.SubjectEvaluator,
	notifier adapter.Notifier,
	tm repository.TransactionManager,
	dailyLimit int,
	logger *zerolog.Logger,
) *evaluationUC {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &evaluationUC{
		subjects:   subjects,
		schedule:   schedule,
		evaluator:  evaluator,
		notifier:   notifier,
		tm:         tm,
		dailyLimit: dailyLimit,
		now:        time.Now,
		log:        logger,
	}
}

func (u *evaluationUC) FindDue(ctx context.Context, limit int) ([]*model.Subject, error) {
	if limit <= 0 {
		limit = dueBatchLimit
	}
	return u.subjects.FindDue(ctx, nil, u.now(), limit)
}

func (u *evaluationUC) ScheduleBatch(ctx context.Context) (ScheduleReport, error) {
	now := u.now()
	today := model.Day(now)

	due, err := u.subjects.FindDue(ctx, nil, now, dueBatchLimit)
	if err != nil {
		return ScheduleReport{}, fmt.Errorf("find due subjects: %w", err)
	}
	report := ScheduleReport{Due: len(due)}
	if len(due) == 0 {
		return report, nil
	}

	counts, err := u.schedule.CountForDay(ctx, nil, today)
	if err != nil {
		return report, fmt.Errorf("count today's schedule: %w", err)
	}
	// Completed work still consumes today's quota; only future days count
	// pending entries.
	availableToday := u.dailyLimit - (counts.Pending + counts.Completed)
	if availableToday < 0 {
		availableToday = 0
	}

	// pendingByDay caches per-day pending counts so the overflow walk does
	// not re-query a day it already filled during this run.
	pendingByDay := map[time.Time]int{today: counts.Pending + counts.Completed}

	for _, s := range due {
		var day time.Time
		switch {
		case availableToday > 0:
			day = today
			availableToday--
		default:
			day, err = u.firstOpenDay(ctx, today, pendingByDay)
			if err != nil {
				return report, err
			}
			if day.IsZero() {
				report.Unplaced++
				u.log.Warn().Str("subject_id", s.ID).Msg("no schedule capacity within horizon")
				continue
			}
		}

		if err := u.scheduleOn(ctx, s, day); err != nil {
			return report, fmt.Errorf("schedule subject %s: %w", s.ID, err)
		}
		pendingByDay[day]++
		metrics.IncEvaluationScheduled()
		if day.Equal(today) {
			report.ScheduledToday++
		} else {
			report.Overflowed++
			metrics.IncEvaluationOverflowed()
		}
	}

	u.log.Info().
		Int("due", report.Due).
		Int("today", report.ScheduledToday).
		Int("overflowed", report.Overflowed).
		Int("unplaced", report.Unplaced).
		Msg("evaluation scheduling run finished")
	return report, nil
}

// firstOpenDay walks forward from tomorrow to the first day whose pending
// count is under the daily limit. Returns the zero time when the horizon is
// exhausted.
func (u *evaluationUC) firstOpenDay(ctx context.Context, today time.Time, pendingByDay map[time.Time]int) (time.Time, error) {
	for i := 1; i <= overflowHorizonDays; i++ {
		day := today.AddDate(0, 0, i)
		n, ok := pendingByDay[day]
		if !ok {
			counts, err := u.schedule.CountForDay(ctx, nil, day)
			if err != nil {
				return time.Time{}, fmt.Errorf("count schedule for %s: %w", day.Format("2006-01-02"), err)
			}
			n = counts.Pending
			pendingByDay[day] = n
		}
		if n < u.dailyLimit {
			return day, nil
		}
	}
	return time.Time{}, nil
}

// scheduleOn upserts the subject's pending entry onto day and marks the
// subject pending, in one transaction.
func (u *evaluationUC) scheduleOn(ctx context.Context, s *model.Subject, day time.Time) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		entry := &model.ScheduleEntry{
			ID:            uuid.NewString(),
			SubjectID:     s.ID,
			ScheduledDate: day,
			Status:        model.ScheduleStatusPending,
		}
		if err := u.schedule.Save(ctx, tx, entry); err != nil {
			return err
		}
		return u.subjects.SetEvaluationPending(ctx, tx, s.ID, true)
	})
}

func (u *evaluationUC) ProcessDailyQueue(ctx context.Context, day time.Time, limit int) (int, error) {
	day = model.Day(day)
	entries, err := u.schedule.ClaimForDay(ctx, day, limit)
	if err != nil {
		return 0, fmt.Errorf("claim schedule entries: %w", err)
	}

	var completed, failed int
	for _, e := range entries {
		if err := u.processEntry(ctx, e); err != nil {
			failed++
			u.log.Error().Err(err).Str("entry_id", e.ID).Str("subject_id", e.SubjectID).Msg("evaluation failed")
		} else {
			completed++
		}
	}

	if len(entries) > 0 {
		u.log.Info().
			Str("day", day.Format("2006-01-02")).
			Int("completed", completed).
			Int("failed", failed).
			Msg("daily evaluation queue drained")
		if u.notifier != nil {
			ev := adapter.NotificationEvent{
				Kind:    "schedule_summary",
				Message: fmt.Sprintf("Evaluations for %s: %d completed, %d failed", day.Format("2006-01-02"), completed, failed),
			}
			go u.notifier.Notify(context.WithoutCancel(ctx), ev)
		}
	}
	return len(entries), nil
}

func (u *evaluationUC) processEntry(ctx context.Context, e *model.ScheduleEntry) error {
	subject, err := u.subjects.FindByID(ctx, nil, e.SubjectID)
	if err != nil {
		finishErr := u.finish(ctx, e, model.ScheduleStatusFailed, "", err.Error())
		metrics.IncEvaluationProcessed(string(model.ScheduleStatusFailed))
		if finishErr != nil {
			return finishErr
		}
		return err
	}

	result, confidence, evalErr := u.evaluator.Evaluate(ctx, subject)
	if evalErr != nil {
		// The subject stays schedulable: clearing the pending flag lets the
		// next run pick it up again.
		if err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.schedule.Finish(ctx, tx, e.ID, model.ScheduleStatusFailed, "", evalErr.Error()); err != nil {
				return err
			}
			return u.subjects.SetEvaluationPending(ctx, tx, subject.ID, false)
		}); err != nil {
			return err
		}
		metrics.IncEvaluationProcessed(string(model.ScheduleStatusFailed))
		return evalErr
	}

	subject.RecordEvaluation(u.now(), result, confidence)
	if err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subjects.Save(ctx, tx, subject); err != nil {
			return err
		}
		return u.schedule.Finish(ctx, tx, e.ID, model.ScheduleStatusCompleted, result, "")
	}); err != nil {
		return err
	}
	metrics.IncEvaluationProcessed(string(model.ScheduleStatusCompleted))
	return nil
}

func (u *evaluationUC) finish(ctx context.Context, e *model.ScheduleEntry, status model.ScheduleStatus, result, errText string) error {
	return u.schedule.Finish(ctx, nil, e.ID, status, result, errText)
}
