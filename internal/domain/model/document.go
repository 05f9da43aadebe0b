package model

import "time"

// DocumentSummary is the slice of a stored purchase document the duplicate
// checker needs: vendor, date and total of previously ingested receipts.
type DocumentSummary struct {
	ID          string
	TaskID      string
	VendorName  string
	Date        string // YYYY-MM-DD
	TotalAmount float64
	CreatedAt   time.Time
}

type DuplicateFlag string

const (
	DuplicateFlagExact   DuplicateFlag = "probable_duplicate" // fuzzy vendor + date + amount within $0.01
	DuplicateFlagSimilar DuplicateFlag = "similar"            // fuzzy vendor + date + amount within 5%
)

// DuplicateMatch is one prior document flagged during pre-submission checks.
// Matches are surfaced to the reviewer, never auto-rejected.
type DuplicateMatch struct {
	DocumentID  string        `json:"document_id"`
	VendorName  string        `json:"vendor_name"`
	Date        string        `json:"date"`
	TotalAmount float64       `json:"total_amount"`
	AmountDelta float64       `json:"amount_delta"`
	Flag        DuplicateFlag `json:"flag"`
}
