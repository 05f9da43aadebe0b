package repository

import (
	"context"
	"time"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

// DayCounts is the schedule load for one calendar day.
type DayCounts struct {
	Pending   int
	Completed int
}

type ScheduleRepository interface {
	// Save upserts an entry. A subject's existing pending entry is moved in
	// place rather than duplicated (at most one pending entry per subject).
	Save(ctx context.Context, tx Tx, e *model.ScheduleEntry) error

	FindPendingBySubject(ctx context.Context, tx Tx, subjectID string) (*model.ScheduleEntry, error)

	CountForDay(ctx context.Context, tx Tx, day time.Time) (DayCounts, error)

	// ClaimForDay atomically moves up to limit pending entries for the given
	// day to processing, oldest scheduled_date first.
	ClaimForDay(ctx context.Context, day time.Time, limit int) ([]*model.ScheduleEntry, error)

	// Finish records the terminal status of a processed entry.
	Finish(ctx context.Context, tx Tx, id string, status model.ScheduleStatus, result, errText string) error
}
