package repository

import (
	"context"
	"time"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

type SubjectRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subject) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subject, error)

	// FindDue returns subjects with next_evaluation_date <= now and no
	// pending evaluation, oldest due date first.
	FindDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subject, error)

	SetEvaluationPending(ctx context.Context, tx Tx, id string, pending bool) error
}
