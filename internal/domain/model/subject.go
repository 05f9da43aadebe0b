package model

import "time"

// ReviewConfidenceThreshold is the confidence below which an evaluation
// result is flagged for manual review.
const ReviewConfidenceThreshold = 0.8

// ReevaluationInterval is how long after a completed evaluation a subject
// becomes due again.
const ReevaluationInterval = 90 * 24 * time.Hour

// Subject is an inventory item eligible for periodic re-evaluation.
type Subject struct {
	ID                 string
	Name               string
	LastEvaluatedAt    *time.Time
	NextEvaluationDate *time.Time
	EvalConfidence     float64
	NeedsManualReview  bool
	EvaluationPending  bool
	History            []EvaluationResult
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EvaluationResult is one append-only history entry.
type EvaluationResult struct {
	Date       time.Time `json:"date"`
	Result     string    `json:"result"`
	Confidence float64   `json:"confidence"`
	Approved   bool      `json:"approved"`
}

// RecordEvaluation appends a history entry and rolls the derived fields.
func (s *Subject) RecordEvaluation(at time.Time, result string, confidence float64) {
	s.History = append(s.History, EvaluationResult{Date: at, Result: result, Confidence: confidence})
	s.LastEvaluatedAt = &at
	next := at.Add(ReevaluationInterval)
	s.NextEvaluationDate = &next
	s.EvalConfidence = confidence
	s.EvaluationPending = false
	s.NeedsManualReview = confidence < ReviewConfidenceThreshold
	s.UpdatedAt = at
}
