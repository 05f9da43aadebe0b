//go:build !integration

package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusProcessing, TaskStatusCompleted, true},
		{TaskStatusProcessing, TaskStatusPending, true}, // stale reclaim
		{TaskStatusPendingReview, TaskStatusCompleted, true},
		{TaskStatusPendingReview, TaskStatusRejected, true},
		{TaskStatusNeedsReview, TaskStatusRejected, true},
		{TaskStatusAnalysisFailed, TaskStatusCompleted, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusRejected, TaskStatusProcessing, false},
		{TaskStatusFailed, TaskStatusPending, false},
		{TaskStatusPendingReview, TaskStatusProcessing, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTaskStatus_InReviewAndTerminal(t *testing.T) {
	t.Parallel()
	for _, s := range []TaskStatus{TaskStatusPendingReview, TaskStatusNeedsReview, TaskStatusAnalysisFailed} {
		if !s.InReview() {
			t.Errorf("%s should be in review", s)
		}
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusRejected} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestSubject_RecordEvaluation(t *testing.T) {
	t.Parallel()
	s := &Subject{ID: "s-1", Name: "bike"}
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s.RecordEvaluation(at, "frame worn", 0.65)

	if len(s.History) != 1 || s.History[0].Result != "frame worn" {
		t.Fatalf("history = %+v", s.History)
	}
	if !s.NeedsManualReview {
		t.Error("confidence 0.65 must flag manual review")
	}
	if s.EvaluationPending {
		t.Error("pending flag must clear")
	}
	wantNext := at.Add(ReevaluationInterval)
	if s.NextEvaluationDate == nil || !s.NextEvaluationDate.Equal(wantNext) {
		t.Errorf("next evaluation = %v, want %v", s.NextEvaluationDate, wantNext)
	}

	s.RecordEvaluation(at.AddDate(0, 3, 0), "repaired", 0.95)
	if s.NeedsManualReview {
		t.Error("confidence 0.95 must clear the review flag")
	}
	if len(s.History) != 2 {
		t.Errorf("history must be append-only, got %d entries", len(s.History))
	}
}

func TestLedgerKey(t *testing.T) {
	t.Parallel()
	idx := 3
	if LedgerKey("doc-1", nil, CreationKindDocument) == LedgerKey("doc-1", &idx, CreationKindDocument) {
		t.Error("document-level and line-level keys must differ")
	}
	rec := &CreationRecord{SourceDocumentID: "doc-1", LineIndex: &idx, Kind: CreationKindLineObject}
	if rec.Key() != LedgerKey("doc-1", &idx, CreationKindLineObject) {
		t.Error("Key() must match LedgerKey")
	}
}

func TestDay_TruncatesToUTC(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("X", -5*3600)
	in := time.Date(2026, 7, 4, 23, 30, 0, 0, loc)
	got := Day(in)
	if got.Hour() != 0 || got.Location() != time.UTC {
		t.Errorf("Day(%v) = %v", in, got)
	}
}
