package extract

import (
	"strings"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

// HeuristicEventConfidence is deliberately modest: a vocabulary hit is a
// hint, not a provider-asserted fact.
const HeuristicEventConfidence = 0.5

// eventVocabulary matches vendors and line descriptions that usually mean an
// event-ticket purchase.
var eventVocabulary = []string{
	"ticket", "admission", "concert", "theater", "theatre",
	"cinema", "stadium", "festival", "museum", "matinee",
	"box office", "ticketmaster", "stubhub",
}

// augmentEvent synthesizes an event record when no provider-asserted one is
// present but the vendor or a line item matches the ticket vocabulary. The
// matching line item is reclassified to a single-use ticket that expires on
// the event date.
func augmentEvent(ex *model.CanonicalExtraction) {
	if ex.EventDetails != nil {
		return
	}

	name, matched := "", false
	if matchesEventVocabulary(ex.VendorName) {
		name, matched = ex.VendorName, true
	}
	for i := range ex.LineItems {
		li := &ex.LineItems[i]
		if matchesEventVocabulary(li.Description) {
			if !matched {
				name, matched = li.Description, true
			}
			li.SuggestedObjectType = "ticket"
		}
	}
	if !matched {
		return
	}

	// Ticket purchases at an event vendor: all line items without a better
	// classification become tickets.
	if matchesEventVocabulary(ex.VendorName) {
		for i := range ex.LineItems {
			if ex.LineItems[i].SuggestedObjectType == "" {
				ex.LineItems[i].SuggestedObjectType = "ticket"
			}
		}
	}

	ex.EventDetails = &model.EventDetails{
		Name:            name,
		Date:            ex.Date,
		Confidence:      HeuristicEventConfidence,
		DetectionMethod: "heuristic",
	}
}

func matchesEventVocabulary(s string) bool {
	l := strings.ToLower(s)
	if l == "" {
		return false
	}
	for _, w := range eventVocabulary {
		if strings.Contains(l, w) {
			return true
		}
	}
	return false
}
