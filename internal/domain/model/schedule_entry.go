package model

import "time"

type ScheduleStatus string

const (
	ScheduleStatusPending    ScheduleStatus = "pending"
	ScheduleStatusProcessing ScheduleStatus = "processing"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusFailed     ScheduleStatus = "failed"
)

// ScheduleEntry assigns a subject's next evaluation to a calendar day.
// The store enforces at most one pending entry per subject.
type ScheduleEntry struct {
	ID            string
	SubjectID     string
	ScheduledDate time.Time // day granularity, always truncated to midnight UTC
	Status        ScheduleStatus
	Attempts      int
	Result        string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Day truncates t to day granularity in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
