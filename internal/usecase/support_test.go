//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/repository"
)

var testLogger = zerolog.Nop()

// passTxManager runs fn directly with a nil handle; the in-memory repos have
// no transactional behavior to exercise.
type passTxManager struct{}

var _ repository.TransactionManager = (*passTxManager)(nil)

func (passTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// =============================
// In-memory repositories
// =============================

type memTaskRepo struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]*model.Task
}

var _ repository.TaskRepository = (*memTaskRepo)(nil)

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: map[string]*model.Task{}}
}

func (r *memTaskRepo) Enqueue(_ context.Context, _ repository.Tx, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if task.ID == "" {
		task.ID = fmt.Sprintf("task-%04d", r.seq)
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.NotBefore.IsZero() {
		task.NotBefore = task.CreatedAt
	}
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *memTaskRepo) DequeueBatch(_ context.Context, limit int) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var ready []*model.Task
	for _, t := range r.tasks {
		if t.Status == model.TaskStatusPending && !t.NotBefore.After(now) {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].NotBefore.Before(ready[j].NotBefore)
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}
	out := make([]*model.Task, 0, len(ready))
	for _, t := range ready {
		t.Status = model.TaskStatusProcessing
		t.Attempts++
		at := now
		t.LastAttemptAt = &at
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTaskRepo) transition(id string, to model.TaskStatus, apply func(t *model.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !model.CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	apply(t)
	return nil
}

func (r *memTaskRepo) Complete(_ context.Context, _ repository.Tx, id string, result json.RawMessage) error {
	return r.transition(id, model.TaskStatusCompleted, func(t *model.Task) {
		t.Result = result
		now := time.Now()
		t.CompletedAt = &now
	})
}

func (r *memTaskRepo) Fail(_ context.Context, _ repository.Tx, id string, errText string) error {
	return r.transition(id, model.TaskStatusFailed, func(t *model.Task) { t.LastError = errText })
}

func (r *memTaskRepo) SetStatus(_ context.Context, _ repository.Tx, id string, status model.TaskStatus) error {
	return r.transition(id, status, func(*model.Task) {})
}

func (r *memTaskRepo) Reject(_ context.Context, _ repository.Tx, id string, reason string) error {
	return r.transition(id, model.TaskStatusRejected, func(t *model.Task) { t.LastError = reason })
}

func (r *memTaskRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) List(_ context.Context, _ repository.Tx, status model.TaskStatus, limit int) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, t := range r.tasks {
		if status == "" || t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTaskRepo) ReclaimStale(_ context.Context, olderThan time.Duration, maxAttempts int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, t := range r.tasks {
		if t.Status != model.TaskStatusProcessing || t.LastAttemptAt == nil || !t.LastAttemptAt.Before(cutoff) {
			continue
		}
		if t.Attempts >= maxAttempts {
			t.Status = model.TaskStatusFailed
			t.LastError = "abandoned by worker; max attempts reached"
		} else {
			t.Status = model.TaskStatusPending
		}
		n++
	}
	return n, nil
}

type memSubjectRepo struct {
	mu       sync.Mutex
	subjects map[string]*model.Subject
}

var _ repository.SubjectRepository = (*memSubjectRepo)(nil)

func newMemSubjectRepo() *memSubjectRepo {
	return &memSubjectRepo{subjects: map[string]*model.Subject{}}
}

func (r *memSubjectRepo) Save(_ context.Context, _ repository.Tx, s *model.Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.subjects[s.ID] = &cp
	return nil
}

func (r *memSubjectRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subjects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubjectRepo) FindDue(_ context.Context, _ repository.Tx, now time.Time, limit int) ([]*model.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subject
	for _, s := range r.subjects {
		if s.EvaluationPending || s.NextEvaluationDate == nil || s.NextEvaluationDate.After(now) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextEvaluationDate.Before(*out[j].NextEvaluationDate) ||
			(out[i].NextEvaluationDate.Equal(*out[j].NextEvaluationDate) && out[i].ID < out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSubjectRepo) SetEvaluationPending(_ context.Context, _ repository.Tx, id string, pending bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subjects[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.EvaluationPending = pending
	return nil
}

type memScheduleRepo struct {
	mu      sync.Mutex
	entries map[string]*model.ScheduleEntry
}

var _ repository.ScheduleRepository = (*memScheduleRepo)(nil)

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{entries: map[string]*model.ScheduleEntry{}}
}

func (r *memScheduleRepo) Save(_ context.Context, _ repository.Tx, e *model.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Move an existing pending entry in place, matching the store's partial
	// unique index semantics.
	for _, ex := range r.entries {
		if ex.SubjectID == e.SubjectID && ex.Status == model.ScheduleStatusPending {
			ex.ScheduledDate = e.ScheduledDate
			ex.UpdatedAt = time.Now()
			e.ID = ex.ID
			return nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *memScheduleRepo) FindPendingBySubject(_ context.Context, _ repository.Tx, subjectID string) (*model.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.SubjectID == subjectID && e.Status == model.ScheduleStatusPending {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memScheduleRepo) CountForDay(_ context.Context, _ repository.Tx, day time.Time) (repository.DayCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day = model.Day(day)
	var c repository.DayCounts
	for _, e := range r.entries {
		if !model.Day(e.ScheduledDate).Equal(day) {
			continue
		}
		switch e.Status {
		case model.ScheduleStatusPending:
			c.Pending++
		case model.ScheduleStatusCompleted:
			c.Completed++
		}
	}
	return c, nil
}

func (r *memScheduleRepo) ClaimForDay(_ context.Context, day time.Time, limit int) ([]*model.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day = model.Day(day)
	var out []*model.ScheduleEntry
	for _, e := range r.entries {
		if e.Status == model.ScheduleStatusPending && model.Day(e.ScheduledDate).Equal(day) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	claimed := make([]*model.ScheduleEntry, 0, len(out))
	for _, e := range out {
		e.Status = model.ScheduleStatusProcessing
		e.Attempts++
		cp := *e
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *memScheduleRepo) Finish(_ context.Context, _ repository.Tx, id string, status model.ScheduleStatus, result, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	e.Result = result
	e.LastError = errText
	e.UpdatedAt = time.Now()
	return nil
}

type memLedgerRepo struct {
	mu      sync.Mutex
	records map[string]*model.CreationRecord
}

var _ repository.CreationRecordRepository = (*memLedgerRepo)(nil)

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{records: map[string]*model.CreationRecord{}}
}

func (r *memLedgerRepo) Find(_ context.Context, _ repository.Tx, docID string, lineIndex *int, kind model.CreationKind) (*model.CreationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[model.LedgerKey(docID, lineIndex, kind)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memLedgerRepo) Record(_ context.Context, _ repository.Tx, rec *model.CreationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rec.Key()
	if _, ok := r.records[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *rec
	r.records[key] = &cp
	return nil
}

func (r *memLedgerRepo) ListForDocument(_ context.Context, _ repository.Tx, docID string) ([]*model.CreationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CreationRecord
	for _, rec := range r.records {
		if rec.SourceDocumentID == docID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memDocumentRepo struct {
	mu   sync.Mutex
	docs []*model.DocumentSummary
}

var _ repository.DocumentRepository = (*memDocumentRepo)(nil)

func newMemDocumentRepo() *memDocumentRepo { return &memDocumentRepo{} }

func (r *memDocumentRepo) Save(_ context.Context, _ repository.Tx, d *model.DocumentSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.docs = append(r.docs, &cp)
	return nil
}

func (r *memDocumentRepo) FindByDate(_ context.Context, _ repository.Tx, date string) ([]*model.DocumentSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentSummary
	for _, d := range r.docs {
		if d.Date == date {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// =============================
// Collaborator mocks
// =============================

type mockSink struct {
	mu      sync.Mutex
	Created []struct {
		Kind   model.CreationKind
		Fields map[string]any
	}
	CreateEntityFunc func(ctx context.Context, tx repository.Tx, kind model.CreationKind, fields map[string]any) (string, error)
}

var _ adapter.EntitySink = (*mockSink)(nil)

func (m *mockSink) CreateEntity(ctx context.Context, tx repository.Tx, kind model.CreationKind, fields map[string]any) (string, error) {
	if m.CreateEntityFunc != nil {
		return m.CreateEntityFunc(ctx, tx, kind, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, struct {
		Kind   model.CreationKind
		Fields map[string]any
	}{kind, fields})
	return uuid.NewString(), nil
}

func (m *mockSink) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Created)
}

type mockNotifier struct {
	mu     sync.Mutex
	Events []adapter.NotificationEvent
}

var _ adapter.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) Notify(_ context.Context, ev adapter.NotificationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

type mockEvaluator struct {
	EvaluateFunc func(ctx context.Context, s *model.Subject) (string, float64, error)
}

var _ adapter.SubjectEvaluator = (*mockEvaluator)(nil)

func (m *mockEvaluator) Evaluate(ctx context.Context, s *model.Subject) (string, float64, error) {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, s)
	}
	return "ok", 0.95, nil
}
