// File: internal/usecase/intake_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
	"github.com/Gumbees/homebase-intake/internal/infra/metrics"
)

// Compile-time check
var _ IntakeUseCase = (*intakeUC)(nil)

// DocumentPayload is the payload carried by document_review tasks: the
// stored-bytes reference plus the canonical extraction exactly as the
// normalizer produced it.
type DocumentPayload struct {
	AttachmentRef string                    `json:"attachment_ref"`
	Filename      string                    `json:"filename,omitempty"`
	Provider      string                    `json:"provider,omitempty"`
	Extraction    model.CanonicalExtraction `json:"extraction"`
	Duplicates    []model.DuplicateMatch    `json:"duplicates,omitempty"`
}

// Decision is one human-approved creation out of a review task.
type Decision struct {
	Kind      model.CreationKind `json:"kind"`
	LineIndex *int               `json:"line_index,omitempty"`
	Overrides map[string]any     `json:"overrides,omitempty"`
}

// Decision outcome statuses. already_created is not an error: it reports
// that the ledger suppressed a repeat of an earlier decision.
const (
	DecisionCreated        = "created"
	DecisionAlreadyCreated = "already_created"
	DecisionFailed         = "failed"
)

type DecisionOutcome struct {
	Kind      model.CreationKind `json:"kind"`
	LineIndex *int               `json:"line_index,omitempty"`
	Status    string             `json:"status"`
	EntityID  string             `json:"entity_id,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type SubmitRequest struct {
	AttachmentRef string
	Filename      string
	Provider      string
	Extraction    model.CanonicalExtraction
}

type IntakeUseCase interface {
	// Submit enqueues a document_review task carrying the extraction and the
	// attachment reference. The task lands in a review status; extraction
	// failures land in ai_analysis_failed for manual handling.
	Submit(ctx context.Context, req SubmitRequest) (*model.Task, error)

	// CheckDuplicates flags prior documents with a similar vendor on the same
	// date. Flags are surfaced to the reviewer, never auto-rejected.
	CheckDuplicates(ctx context.Context, ex *model.CanonicalExtraction) ([]model.DuplicateMatch, error)

	// Approve applies review decisions one by one. Each decision is its own
	// atomic unit; a failure or ledger hit on one never blocks the rest.
	Approve(ctx context.Context, taskID string, decisions []Decision) ([]DecisionOutcome, error)

	Reject(ctx context.Context, taskID, reason string) error

	ListQueue(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	Ledger(ctx context.Context, taskID string) ([]*model.CreationRecord, error)
}

type intakeUC struct {
	tasks    repository.TaskRepository
	docs     repository.DocumentRepository
	ledger   repository.CreationRecordRepository
	sink     adapter.EntitySink
	notifier adapter.Notifier
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewIntakeUseCase(
	tasks repository.TaskRepository,
	docs repository.DocumentRepository,
	ledger repository.CreationRecordRepository,
	sink adapter.EntitySink,
	notifier adapter.Notifier,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *intakeUC {
	return &intakeUC{tasks: tasks, docs: docs, ledger: ledger, sink: sink, notifier: notifier, tm: tm, log: logger}
}

func (u *intakeUC) Submit(ctx context.Context, req SubmitRequest) (*model.Task, error) {
	if req.AttachmentRef == "" {
		return nil, fmt.Errorf("%w: attachment ref required", domain.ErrInvalidArgument)
	}

	dups, err := u.CheckDuplicates(ctx, &req.Extraction)
	if err != nil {
		// Duplicate flags are advisory; a lookup failure must not block intake.
		u.log.Warn().Err(err).Msg("duplicate check failed, submitting without flags")
		dups = nil
	}

	payload, err := json.Marshal(DocumentPayload{
		AttachmentRef: req.AttachmentRef,
		Filename:      req.Filename,
		Provider:      req.Provider,
		Extraction:    req.Extraction,
		Duplicates:    dups,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal document payload: %w", err)
	}

	task := &model.Task{
		Kind:    model.TaskKindDocumentReview,
		Status:  reviewStatus(&req.Extraction),
		Payload: payload,
	}
	if err := u.tasks.Enqueue(ctx, nil, task); err != nil {
		return nil, err
	}
	metrics.IncTaskEnqueued(string(task.Kind))

	u.log.Info().
		Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Str("vendor", req.Extraction.VendorName).
		Int("duplicates", len(dups)).
		Msg("document submitted for review")

	if u.notifier != nil {
		ev := adapter.NotificationEvent{
			Kind:    "pending_review",
			TaskID:  task.ID,
			Message: fmt.Sprintf("Document from %q awaits review (%s)", req.Extraction.VendorName, task.Status),
		}
		go u.notifier.Notify(context.WithoutCancel(ctx), ev)
	}
	return task, nil
}

// reviewStatus picks the landing status: outright extraction failures go to
// ai_analysis_failed, low-confidence extractions to needs_review.
func reviewStatus(ex *model.CanonicalExtraction) model.TaskStatus {
	switch {
	case ex.ParseError != "":
		return model.TaskStatusAnalysisFailed
	case ex.Confidence < model.ReviewConfidenceThreshold:
		return model.TaskStatusNeedsReview
	default:
		return model.TaskStatusPendingReview
	}
}

// Amount tolerance for the probable-duplicate flag; wider relative band for
// the similar flag.
const (
	duplicateAmountEpsilon = 0.01
	similarAmountFraction  = 0.05
)

func (u *intakeUC) CheckDuplicates(ctx context.Context, ex *model.CanonicalExtraction) ([]model.DuplicateMatch, error) {
	if ex.Date == "" {
		return nil, nil
	}
	prior, err := u.docs.FindByDate(ctx, nil, ex.Date)
	if err != nil {
		return nil, err
	}

	var matches []model.DuplicateMatch
	for _, d := range prior {
		if !vendorsSimilar(ex.VendorName, d.VendorName) {
			continue
		}
		delta := math.Abs(ex.TotalAmount - d.TotalAmount)
		var flag model.DuplicateFlag
		switch {
		case delta <= duplicateAmountEpsilon:
			flag = model.DuplicateFlagExact
		case d.TotalAmount != 0 && delta <= similarAmountFraction*math.Abs(d.TotalAmount):
			flag = model.DuplicateFlagSimilar
		default:
			continue
		}
		metrics.IncDuplicateFlag(string(flag))
		matches = append(matches, model.DuplicateMatch{
			DocumentID:  d.ID,
			VendorName:  d.VendorName,
			Date:        d.Date,
			TotalAmount: d.TotalAmount,
			AmountDelta: delta,
			Flag:        flag,
		})
	}
	return matches, nil
}

// vendorsSimilar is a fuzzy name comparison: case- and punctuation-blind
// equality, or containment for names at least four characters long (catches
// "Walmart" vs "Walmart Supercenter #1234").
func vendorsSimilar(a, b string) bool {
	na, nb := normalizeVendor(a), normalizeVendor(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if len(na) >= 4 && strings.Contains(nb, na) {
		return true
	}
	if len(nb) >= 4 && strings.Contains(na, nb) {
		return true
	}
	return false
}

func normalizeVendor(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (u *intakeUC) Approve(ctx context.Context, taskID string, decisions []Decision) ([]DecisionOutcome, error) {
	task, err := u.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == model.TaskStatusCompleted {
		return u.replayDecisions(ctx, taskID, decisions)
	}
	if !task.Status.InReview() {
		return nil, fmt.Errorf("%w: task %s is %s, not reviewable", domain.ErrInvalidTransition, taskID, task.Status)
	}

	var payload DocumentPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("document payload: %w", err)
	}

	outcomes := make([]DecisionOutcome, 0, len(decisions))
	for _, d := range decisions {
		outcomes = append(outcomes, u.applyDecision(ctx, task, &payload, d))
	}

	result, err := json.Marshal(outcomes)
	if err != nil {
		return nil, fmt.Errorf("marshal decision outcomes: %w", err)
	}
	if err := u.tasks.Complete(ctx, nil, taskID, result); err != nil {
		return outcomes, err
	}
	metrics.IncIntakeDecision("approve")
	metrics.IncTaskProcessed(string(task.Kind), string(model.TaskStatusCompleted))

	u.log.Info().Str("task_id", taskID).Int("decisions", len(decisions)).Msg("review approved")
	return outcomes, nil
}

// replayDecisions answers a repeated approval of an already completed task
// from the ledger alone. No entities are written; each decision reports the
// entity its first approval created.
func (u *intakeUC) replayDecisions(ctx context.Context, taskID string, decisions []Decision) ([]DecisionOutcome, error) {
	outcomes := make([]DecisionOutcome, 0, len(decisions))
	for _, d := range decisions {
		out := DecisionOutcome{Kind: d.Kind, LineIndex: d.LineIndex}
		rec, err := u.ledger.Find(ctx, nil, taskID, d.LineIndex, d.Kind)
		switch {
		case err == nil:
			out.Status = DecisionAlreadyCreated
			out.EntityID = rec.TargetEntityID
		case errors.Is(err, domain.ErrNotFound):
			out.Status = DecisionFailed
			out.Error = "no creation record for decision"
		default:
			out.Status = DecisionFailed
			out.Error = err.Error()
		}
		outcomes = append(outcomes, out)
	}
	u.log.Info().Str("task_id", taskID).Int("decisions", len(decisions)).Msg("approval replayed from ledger")
	return outcomes, nil
}

// applyDecision runs one decision as an atomic unit: entity write plus ledger
// row commit together or not at all. A ledger hit rolls the entity back and
// reports already_created.
func (u *intakeUC) applyDecision(ctx context.Context, task *model.Task, payload *DocumentPayload, d Decision) DecisionOutcome {
	out := DecisionOutcome{Kind: d.Kind, LineIndex: d.LineIndex}

	fields, err := decisionFields(payload, d)
	if err != nil {
		out.Status = DecisionFailed
		out.Error = err.Error()
		return out
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		rec, err := u.ledger.Find(ctx, tx, task.ID, d.LineIndex, d.Kind)
		switch {
		case err == nil:
			out.Status = DecisionAlreadyCreated
			out.EntityID = rec.TargetEntityID
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		entityID, err := u.sink.CreateEntity(ctx, tx, d.Kind, fields)
		if err != nil {
			return err
		}
		if err := u.ledger.Record(ctx, tx, &model.CreationRecord{
			SourceDocumentID: task.ID,
			LineIndex:        d.LineIndex,
			Kind:             d.Kind,
			TargetEntityID:   entityID,
			CreatedAt:        time.Now(),
		}); err != nil {
			return err
		}

		if d.Kind == model.CreationKindDocument {
			if err := u.docs.Save(ctx, tx, &model.DocumentSummary{
				ID:          entityID,
				TaskID:      task.ID,
				VendorName:  payload.Extraction.VendorName,
				Date:        payload.Extraction.Date,
				TotalAmount: payload.Extraction.TotalAmount,
				CreatedAt:   time.Now(),
			}); err != nil {
				return err
			}
		}

		if d.Kind == model.CreationKindLineObject {
			if err := u.scheduleExpiration(ctx, tx, task.ID, payload, d); err != nil {
				return err
			}
		}

		out.Status = DecisionCreated
		out.EntityID = entityID
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race to a concurrent approval of the same decision; the
			// rollback discarded the duplicate entity. The winner's ledger
			// row carries the entity id to report.
			out.Status = DecisionAlreadyCreated
			out.Error = ""
			if rec, ferr := u.ledger.Find(ctx, nil, task.ID, d.LineIndex, d.Kind); ferr == nil {
				out.EntityID = rec.TargetEntityID
			}
			return out
		}
		out.Status = DecisionFailed
		out.Error = err.Error()
		return out
	}
	if out.Status == DecisionCreated {
		metrics.IncEntityCreated(string(d.Kind))
	}
	return out
}

// Consumables without an explicit expiry get a stock check after a fixed
// shelf window.
const defaultConsumableShelf = 30 * 24 * time.Hour

// scheduleExpiration enqueues the derived expiration task for ticket and
// consumable line items: tickets expire on the event date, consumables after
// the default shelf window.
func (u *intakeUC) scheduleExpiration(ctx context.Context, tx repository.Tx, taskID string, payload *DocumentPayload, d Decision) error {
	if d.LineIndex == nil {
		return nil
	}
	item := payload.Extraction.LineItems[*d.LineIndex]
	kind := strings.ToLower(item.SuggestedObjectType)
	if kind != "ticket" && kind != "consumable" {
		return nil
	}

	notBefore := time.Now().Add(defaultConsumableShelf)
	if kind == "ticket" && payload.Extraction.EventDetails != nil {
		if t, err := time.Parse("2006-01-02", payload.Extraction.EventDetails.Date); err == nil {
			notBefore = t
		}
	}

	expPayload, err := json.Marshal(map[string]any{
		"source_task_id": taskID,
		"line_index":     *d.LineIndex,
		"description":    item.Description,
		"object_type":    kind,
	})
	if err != nil {
		return err
	}
	derived := &model.Task{
		Kind:      model.TaskKindConsumableExpiration,
		Payload:   expPayload,
		NotBefore: notBefore,
	}
	if err := u.tasks.Enqueue(ctx, tx, derived); err != nil {
		return err
	}
	metrics.IncTaskEnqueued(string(derived.Kind))
	return nil
}

// decisionFields merges canonical extraction fields with the reviewer's
// overrides; overrides always win.
func decisionFields(payload *DocumentPayload, d Decision) (map[string]any, error) {
	ex := &payload.Extraction
	fields := map[string]any{}

	switch d.Kind {
	case model.CreationKindDocument:
		fields["vendor_name"] = ex.VendorName
		fields["date"] = ex.Date
		fields["total_amount"] = ex.TotalAmount
		fields["is_bill"] = ex.IsBill
		fields["attachment_ref"] = payload.AttachmentRef
		if ex.Subtotal != nil {
			fields["subtotal"] = *ex.Subtotal
		}
		if ex.TaxAmount != nil {
			fields["tax_amount"] = *ex.TaxAmount
		}
		if ex.Fees != nil {
			fields["fees"] = *ex.Fees
		}
		if ex.ReceiptNumber != "" {
			fields["receipt_number"] = ex.ReceiptNumber
		}
		if ex.DueDate != "" {
			fields["due_date"] = ex.DueDate
		}

	case model.CreationKindLineObject:
		if d.LineIndex == nil {
			return nil, fmt.Errorf("%w: line_object decision needs a line index", domain.ErrInvalidArgument)
		}
		if *d.LineIndex < 0 || *d.LineIndex >= len(ex.LineItems) {
			return nil, fmt.Errorf("%w: line index %d out of range", domain.ErrInvalidArgument, *d.LineIndex)
		}
		item := ex.LineItems[*d.LineIndex]
		fields["description"] = item.Description
		fields["quantity"] = item.Quantity
		fields["unit_price"] = item.UnitPrice
		fields["total_price"] = item.TotalPrice
		if item.Category != "" {
			fields["category"] = item.Category
		}
		if item.SuggestedObjectType != "" {
			fields["object_type"] = item.SuggestedObjectType
		}
		fields["vendor_name"] = ex.VendorName
		fields["purchase_date"] = ex.Date

	case model.CreationKindOrganization:
		if ex.VendorName == "" {
			return nil, fmt.Errorf("%w: no vendor name to create an organization from", domain.ErrInvalidArgument)
		}
		fields["name"] = ex.VendorName

	case model.CreationKindCalendarEvent:
		if ex.EventDetails == nil {
			return nil, fmt.Errorf("%w: no event details on this document", domain.ErrInvalidArgument)
		}
		fields["name"] = ex.EventDetails.Name
		fields["date"] = ex.EventDetails.Date
		fields["venue"] = ex.EventDetails.Venue
		fields["detection_method"] = ex.EventDetails.DetectionMethod

	case model.CreationKindPerson:
		if d.LineIndex == nil {
			return nil, fmt.Errorf("%w: person decision needs an index into people_found", domain.ErrInvalidArgument)
		}
		if *d.LineIndex < 0 || *d.LineIndex >= len(ex.PeopleFound) {
			return nil, fmt.Errorf("%w: person index %d out of range", domain.ErrInvalidArgument, *d.LineIndex)
		}
		fields["name"] = ex.PeopleFound[*d.LineIndex]

	default:
		return nil, fmt.Errorf("%w: unknown creation kind %q", domain.ErrInvalidArgument, d.Kind)
	}

	for k, v := range d.Overrides {
		fields[k] = v
	}
	return fields, nil
}

func (u *intakeUC) Reject(ctx context.Context, taskID, reason string) error {
	if err := u.tasks.Reject(ctx, nil, taskID, reason); err != nil {
		return err
	}
	metrics.IncIntakeDecision("reject")
	u.log.Info().Str("task_id", taskID).Str("reason", reason).Msg("review rejected")
	return nil
}

func (u *intakeUC) ListQueue(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error) {
	return u.tasks.List(ctx, nil, status, limit)
}

func (u *intakeUC) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return u.tasks.FindByID(ctx, nil, id)
}

func (u *intakeUC) Ledger(ctx context.Context, taskID string) ([]*model.CreationRecord, error) {
	return u.ledger.ListForDocument(ctx, nil, taskID)
}
