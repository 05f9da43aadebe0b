package model

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusProcessing     TaskStatus = "processing"
	TaskStatusPendingReview  TaskStatus = "pending_review"
	TaskStatusNeedsReview    TaskStatus = "needs_review"
	TaskStatusAnalysisFailed TaskStatus = "ai_analysis_failed"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusRejected       TaskStatus = "rejected"
)

type TaskKind string

const (
	TaskKindDocumentReview       TaskKind = "document_review"
	TaskKindConsumableExpiration TaskKind = "consumable_expiration"
	TaskKindStockCheck           TaskKind = "stock_check"
	TaskKindObjectEvaluation     TaskKind = "object_evaluation"
)

// Task is a unit of durable queued work. Payload and Result are opaque JSON
// so each kind can carry its own shape (document tasks carry the canonical
// extraction, evaluation tasks carry a subject id).
type Task struct {
	ID            string
	Kind          TaskKind
	Status        TaskStatus
	Payload       json.RawMessage
	Priority      int
	NotBefore     time.Time
	Attempts      int
	LastAttemptAt *time.Time
	Result        json.RawMessage
	LastError     string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Terminal reports whether the status admits no further transitions short of
// manual re-enqueue as a new task.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusRejected
}

// InReview reports whether the task is parked waiting for a human decision.
func (s TaskStatus) InReview() bool {
	return s == TaskStatusPendingReview || s == TaskStatusNeedsReview || s == TaskStatusAnalysisFailed
}

// validTransitions encodes the queue state machine. Review states advance
// only through an explicit human decision; the processor never touches them.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:        {TaskStatusProcessing},
	TaskStatusProcessing:     {TaskStatusCompleted, TaskStatusFailed, TaskStatusPendingReview, TaskStatusNeedsReview, TaskStatusAnalysisFailed, TaskStatusPending},
	TaskStatusPendingReview:  {TaskStatusCompleted, TaskStatusRejected},
	TaskStatusNeedsReview:    {TaskStatusCompleted, TaskStatusRejected},
	TaskStatusAnalysisFailed: {TaskStatusCompleted, TaskStatusRejected},
}

// CanTransition reports whether from→to is an edge of the state machine.
// processing→pending is the stale-reclaim edge.
func CanTransition(from, to TaskStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
