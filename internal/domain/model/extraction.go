package model

// CanonicalExtraction is the provider-independent shape every inference
// response is normalized into. It is persisted verbatim as the payload of a
// document_review task so the review UI and any replay see exactly what the
// normalizer saw.
type CanonicalExtraction struct {
	VendorName    string        `json:"vendor_name"`
	Date          string        `json:"date"` // YYYY-MM-DD, empty when unparseable
	TotalAmount   float64       `json:"total_amount"`
	Subtotal      *float64      `json:"subtotal,omitempty"`
	TaxAmount     *float64      `json:"tax_amount,omitempty"`
	Fees          *float64      `json:"fees,omitempty"`
	ReceiptNumber string        `json:"receipt_number,omitempty"`
	DueDate       string        `json:"due_date,omitempty"`
	IsBill        bool          `json:"is_bill"`
	LineItems     []LineItem    `json:"line_items"`
	Confidence    float64       `json:"confidence"`
	EventDetails  *EventDetails `json:"event_details,omitempty"`
	PeopleFound   []string      `json:"people_found,omitempty"`
	DigitalAssets []string      `json:"digital_assets,omitempty"`
	ParseError    string        `json:"parse_error,omitempty"`
}

type LineItem struct {
	Description         string  `json:"description"`
	Quantity            float64 `json:"quantity"`
	UnitPrice           float64 `json:"unit_price"`
	TotalPrice          float64 `json:"total_price"`
	Category            string  `json:"category,omitempty"`
	SuggestedObjectType string  `json:"suggested_object_type,omitempty"`
}

// EventDetails describes an event referenced by the document (a ticket
// purchase, a reservation). DetectionMethod distinguishes provider-asserted
// events from ones synthesized by the vocabulary heuristic.
type EventDetails struct {
	Name            string  `json:"name"`
	Date            string  `json:"date,omitempty"`
	Venue           string  `json:"venue,omitempty"`
	Confidence      float64 `json:"confidence"`
	DetectionMethod string  `json:"detection_method"` // "provider" | "heuristic"
}
