package adapter

import (
	"context"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

// AttachmentStore persists raw document bytes and hands back an opaque ref.
type AttachmentStore interface {
	SaveAttachment(ctx context.Context, data []byte, mime string) (ref string, err error)
}

// NotificationEvent is a fire-and-forget operator notification.
type NotificationEvent struct {
	Kind    string // pending_review | task_failed | schedule_summary | item_expired | stock_check
	TaskID  string
	Message string
}

// Notifier delivers operator notifications. Implementations must be safe to
// call from goroutines; delivery failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, ev NotificationEvent)
}

// SubjectEvaluator runs one subject re-evaluation and reports the outcome
// with its confidence.
type SubjectEvaluator interface {
	Evaluate(ctx context.Context, subject *model.Subject) (result string, confidence float64, err error)
}

// EntitySink is the outbound port to whatever owns the materialized domain
// entities. It accepts the ledger transaction so the entity write and the
// ledger write commit or roll back as one unit.
type EntitySink interface {
	CreateEntity(ctx context.Context, tx repository.Tx, kind model.CreationKind, fields map[string]any) (entityID string, err error)
}
