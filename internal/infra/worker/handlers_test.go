package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

type fakeSubjectRepo struct {
	subjects map[string]*model.Subject
}

var _ repository.SubjectRepository = (*fakeSubjectRepo)(nil)

func (r *fakeSubjectRepo) Save(_ context.Context, _ repository.Tx, s *model.Subject) error {
	cp := *s
	r.subjects[s.ID] = &cp
	return nil
}

func (r *fakeSubjectRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Subject, error) {
	s, ok := r.subjects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSubjectRepo) FindDue(context.Context, repository.Tx, time.Time, int) ([]*model.Subject, error) {
	return nil, nil
}

func (r *fakeSubjectRepo) SetEvaluationPending(_ context.Context, _ repository.Tx, id string, pending bool) error {
	if s, ok := r.subjects[id]; ok {
		s.EvaluationPending = pending
	}
	return nil
}

type staticEvaluator struct {
	result     string
	confidence float64
	err        error
}

func (e staticEvaluator) Evaluate(context.Context, *model.Subject) (string, float64, error) {
	return e.result, e.confidence, e.err
}

func TestConsumableExpirationHandler_NotifiesAndEnqueuesStockCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newFakeTaskRepo()
	notifier := &captureNotifier{}
	h := NewConsumableExpirationHandler(repo, notifier, &testLogger)

	payload, _ := json.Marshal(map[string]any{
		"source_task_id": "t-src",
		"line_index":     2,
		"description":    "eggs 12pk",
		"object_type":    "consumable",
	})
	result, err := h(ctx, &model.Task{ID: "t-exp", Kind: model.TaskKindConsumableExpiration, Payload: payload})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	if got := notifier.byKind("item_expired"); len(got) != 1 {
		t.Fatalf("item_expired notifications = %d, want 1", len(got))
	}

	var out struct {
		StockCheckTaskID string `json:"stock_check_task_id"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatal(err)
	}
	follow, err := repo.FindByID(ctx, nil, out.StockCheckTaskID)
	if err != nil {
		t.Fatalf("follow-up task not enqueued: %v", err)
	}
	if follow.Kind != model.TaskKindStockCheck {
		t.Fatalf("follow-up kind = %s", follow.Kind)
	}
	if follow.NotBefore.Before(time.Now().Add(stockCheckDelay - time.Minute)) {
		t.Fatalf("follow-up not_before = %s, want ~%s out", follow.NotBefore, stockCheckDelay)
	}
}

func TestConsumableExpirationHandler_BadPayload(t *testing.T) {
	t.Parallel()
	h := NewConsumableExpirationHandler(newFakeTaskRepo(), nil, &testLogger)
	_, err := h(context.Background(), &model.Task{ID: "t-1", Payload: []byte(`{broken`)})
	if err == nil {
		t.Fatal("want error for malformed payload")
	}
}

func TestStockCheckHandler_NotifiesOperator(t *testing.T) {
	t.Parallel()
	notifier := &captureNotifier{}
	h := NewStockCheckHandler(notifier, &testLogger)

	payload, _ := json.Marshal(map[string]any{"source_task_id": "t-src", "description": "eggs 12pk"})
	if _, err := h(context.Background(), &model.Task{ID: "t-1", Payload: payload}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := notifier.byKind("stock_check"); len(got) != 1 {
		t.Fatalf("stock_check notifications = %d, want 1", len(got))
	}
}

func TestObjectEvaluationHandler_RecordsResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	subjects := &fakeSubjectRepo{subjects: map[string]*model.Subject{
		"s-1": {ID: "s-1", Name: "lawn mower"},
	}}
	h := NewObjectEvaluationHandler(subjects, staticEvaluator{result: "good condition", confidence: 0.92}, &testLogger)

	payload, _ := json.Marshal(map[string]string{"subject_id": "s-1"})
	result, err := h(ctx, &model.Task{ID: "t-1", Kind: model.TaskKindObjectEvaluation, Payload: payload})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var out struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatal(err)
	}
	if out.Confidence != 0.92 {
		t.Fatalf("confidence = %v", out.Confidence)
	}

	saved, _ := subjects.FindByID(ctx, nil, "s-1")
	if len(saved.History) != 1 || saved.History[0].Result != "good condition" {
		t.Fatalf("history = %+v", saved.History)
	}
	if saved.NeedsManualReview {
		t.Fatal("confidence 0.92 must not flag manual review")
	}
}

func TestObjectEvaluationHandler_UnknownSubject(t *testing.T) {
	t.Parallel()
	subjects := &fakeSubjectRepo{subjects: map[string]*model.Subject{}}
	h := NewObjectEvaluationHandler(subjects, staticEvaluator{}, &testLogger)

	payload, _ := json.Marshal(map[string]string{"subject_id": "nope"})
	if _, err := h(context.Background(), &model.Task{ID: "t-1", Payload: payload}); err == nil {
		t.Fatal("want error for unknown subject")
	}
}
