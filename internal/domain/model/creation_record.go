package model

import (
	"fmt"
	"time"
)

type CreationKind string

const (
	CreationKindDocument      CreationKind = "document"
	CreationKindLineObject    CreationKind = "line_object"
	CreationKindOrganization  CreationKind = "organization"
	CreationKindCalendarEvent CreationKind = "calendar_event"
	CreationKindPerson        CreationKind = "person"
)

// CreationRecord is one row of the idempotency ledger. The composite key
// (SourceDocumentID, LineIndex, Kind) is unique; LineIndex is nil for
// document-level creations.
type CreationRecord struct {
	SourceDocumentID string
	LineIndex        *int
	Kind             CreationKind
	TargetEntityID   string
	Metadata         map[string]string
	CreatedAt        time.Time
}

// LedgerKey renders the composite key in a stable form usable as a map key.
func LedgerKey(docID string, lineIndex *int, kind CreationKind) string {
	if lineIndex == nil {
		return fmt.Sprintf("%s::%s", docID, kind)
	}
	return fmt.Sprintf("%s:%d:%s", docID, *lineIndex, kind)
}

func (r *CreationRecord) Key() string {
	return LedgerKey(r.SourceDocumentID, r.LineIndex, r.Kind)
}
