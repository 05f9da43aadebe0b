package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

type expirationPayload struct {
	SourceTaskID string `json:"source_task_id"`
	LineIndex    int    `json:"line_index"`
	Description  string `json:"description"`
	ObjectType   string `json:"object_type"`
}

// Stock checks happen a few days after the expiration notice so the operator
// has time to act first.
const stockCheckDelay = 3 * 24 * time.Hour

// NewConsumableExpirationHandler notifies the operator that a tracked item
// has reached its expiry and enqueues the follow-up stock check.
func NewConsumableExpirationHandler(tasks repository.TaskRepository, notifier adapter.Notifier, logger *zerolog.Logger) Handler {
	return func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		var p expirationPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: bad expiration payload: %v", domain.ErrInvalidArgument, err)
		}

		if notifier != nil {
			notifier.Notify(ctx, adapter.NotificationEvent{
				Kind:    "item_expired",
				TaskID:  t.ID,
				Message: fmt.Sprintf("%s %q has expired", p.ObjectType, p.Description),
			})
		}

		follow := &model.Task{
			Kind:      model.TaskKindStockCheck,
			Payload:   t.Payload,
			NotBefore: time.Now().Add(stockCheckDelay),
		}
		if err := tasks.Enqueue(ctx, nil, follow); err != nil {
			return nil, fmt.Errorf("enqueue stock check: %w", err)
		}
		logger.Info().
			Str("task_id", t.ID).
			Str("follow_up", follow.ID).
			Str("object_type", p.ObjectType).
			Msg("expiration notice delivered")

		return json.Marshal(map[string]string{"stock_check_task_id": follow.ID})
	}
}

// NewStockCheckHandler asks the operator to verify whether the expired item
// is still on hand. The answer comes back through the review queue, not here.
func NewStockCheckHandler(notifier adapter.Notifier, logger *zerolog.Logger) Handler {
	return func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		var p expirationPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: bad stock check payload: %v", domain.ErrInvalidArgument, err)
		}

		if notifier != nil {
			notifier.Notify(ctx, adapter.NotificationEvent{
				Kind:    "stock_check",
				TaskID:  t.ID,
				Message: fmt.Sprintf("Check stock for %q (from task %s)", p.Description, p.SourceTaskID),
			})
		}
		logger.Info().Str("task_id", t.ID).Msg("stock check requested")
		return json.Marshal(map[string]string{"status": "operator_notified"})
	}
}

type objectEvaluationPayload struct {
	SubjectID string `json:"subject_id"`
}

// NewObjectEvaluationHandler runs an ad-hoc evaluation of a single subject,
// outside the daily scheduled queue.
func NewObjectEvaluationHandler(
	subjects repository.SubjectRepository,
	evaluator adapter.SubjectEvaluator,
	logger *zerolog.Logger,
) Handler {
	return func(ctx context.Context, t *model.Task) (json.RawMessage, error) {
		var p objectEvaluationPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil || p.SubjectID == "" {
			return nil, fmt.Errorf("%w: bad evaluation payload", domain.ErrInvalidArgument)
		}

		subject, err := subjects.FindByID(ctx, nil, p.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("load subject %s: %w", p.SubjectID, err)
		}

		result, confidence, err := evaluator.Evaluate(ctx, subject)
		if err != nil {
			return nil, fmt.Errorf("evaluate subject %s: %w", p.SubjectID, err)
		}

		subject.RecordEvaluation(time.Now(), result, confidence)
		if err := subjects.Save(ctx, nil, subject); err != nil {
			return nil, fmt.Errorf("save subject %s: %w", p.SubjectID, err)
		}
		logger.Info().
			Str("subject_id", subject.ID).
			Float64("confidence", confidence).
			Msg("ad-hoc evaluation recorded")

		return json.Marshal(map[string]any{"result": result, "confidence": confidence})
	}
}
