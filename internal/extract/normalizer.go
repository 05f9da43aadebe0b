// Package extract converts heterogeneous AI-provider output into the
// canonical extraction record. It never returns an error for malformed
// input: the worst payload degrades to a low-confidence fallback record.
package extract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
)

// FallbackConfidence is assigned when the provider sent no usable
// confidence, or when the payload could not be parsed at all.
const FallbackConfidence = 0.3

// payload is the tagged union of response shapes a provider can hand back.
type payload struct {
	kind payloadKind
	doc  map[string]any // set for payloadDirect and payloadEnveloped
	err  string         // set for payloadUnparseable
}

type payloadKind int

const (
	payloadDirect payloadKind = iota
	payloadEnveloped
	payloadUnparseable
)

// envelopeFields are keys under which providers tend to bury prose when they
// ignore the structured-output constraint.
var envelopeFields = []string{"content", "text", "response", "output", "message", "completion"}

type Normalizer struct {
	log *zerolog.Logger
	now func() time.Time
}

func NewNormalizer(log *zerolog.Logger) *Normalizer {
	return &Normalizer{log: log, now: time.Now}
}

// Normalize converts raw provider output into a canonical extraction.
// Malformed input yields a fallback record with ParseError set; the error is
// never propagated.
func (n *Normalizer) Normalize(raw string) *model.CanonicalExtraction {
	p := n.classify(raw)
	if p.kind == payloadUnparseable {
		n.log.Warn().Str("reason", p.err).Msg("unparseable provider payload, synthesizing fallback record")
		return n.fallback(p.err)
	}
	return n.coerceDocument(p.doc)
}

// classify resolves the response-shape union: a mapping that validates
// against the extraction schema is taken directly; a mapping with a nested
// textual field is mined for an embedded JSON span; anything else is
// unparseable.
func (n *Normalizer) classify(raw string) payload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return payload{kind: payloadUnparseable, err: "empty response"}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
		if verr := extractionSchema.Validate(any(doc)); verr == nil {
			return payload{kind: payloadDirect, doc: doc}
		} else if hasExpectedFields(doc) {
			n.log.Warn().Err(verr).Msg("provider payload carries extraction keys but fails schema validation")
			return payload{kind: payloadUnparseable, err: "json object does not match extraction schema"}
		}
		// Provider echoed an envelope instead of the document itself.
		for _, key := range envelopeFields {
			if s, ok := doc[key].(string); ok && s != "" {
				if inner, ok := parseEmbeddedJSON(s); ok {
					return payload{kind: payloadEnveloped, doc: inner}
				}
			}
		}
		return payload{kind: payloadUnparseable, err: "json object missing expected fields"}
	}

	// Raw prose, possibly with a fenced or inline JSON document.
	if inner, ok := parseEmbeddedJSON(trimmed); ok {
		if hasExpectedFields(inner) {
			return payload{kind: payloadEnveloped, doc: inner}
		}
		return payload{kind: payloadUnparseable, err: "embedded json missing expected fields"}
	}
	return payload{kind: payloadUnparseable, err: "no json document found in response"}
}

func hasExpectedFields(doc map[string]any) bool {
	for _, k := range []string{"vendor_name", "total_amount", "line_items"} {
		if _, ok := doc[k]; ok {
			return true
		}
	}
	return false
}

// parseEmbeddedJSON strips Markdown code fences and extracts the first
// balanced {...} or [...] span.
func parseEmbeddedJSON(text string) (map[string]any, bool) {
	cleaned := stripFences(text)
	span, ok := balancedSpan(cleaned)
	if !ok {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(span), &doc); err == nil {
		return doc, true
	}
	// Arrays are tolerated: wrap a top-level line-item array.
	var arr []any
	if err := json.Unmarshal([]byte(span), &arr); err == nil {
		return map[string]any{"line_items": arr}, true
	}
	return nil, false
}

func stripFences(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// balancedSpan returns the first balanced {...} or [...] region, honoring
// string literals and escapes.
func balancedSpan(text string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// fallback builds the record used when nothing could be parsed: today's
// date, zero amount, no line items, low confidence, explicit error marker.
func (n *Normalizer) fallback(reason string) *model.CanonicalExtraction {
	return &model.CanonicalExtraction{
		VendorName: "Unknown Vendor",
		Date:       n.now().Format("2006-01-02"),
		Confidence: FallbackConfidence,
		LineItems:  []model.LineItem{},
		ParseError: reason,
	}
}

// coerceDocument applies field coercion over a parsed mapping.
func (n *Normalizer) coerceDocument(doc map[string]any) *model.CanonicalExtraction {
	out := &model.CanonicalExtraction{
		VendorName:    asString(doc["vendor_name"]),
		Date:          CoerceDate(asString(doc["date"])),
		TotalAmount:   CoerceAmount(doc["total_amount"]),
		ReceiptNumber: asString(doc["receipt_number"]),
		DueDate:       CoerceDate(asString(doc["due_date"])),
		Confidence:    coerceConfidence(doc["confidence"]),
		LineItems:     []model.LineItem{},
	}
	out.IsBill = out.DueDate != ""

	if v, ok := doc["subtotal"]; ok && v != nil {
		f := CoerceAmount(v)
		out.Subtotal = &f
	}
	if v, ok := doc["tax_amount"]; ok && v != nil {
		f := CoerceAmount(v)
		out.TaxAmount = &f
	}
	if v, ok := doc["fees"]; ok && v != nil {
		f := CoerceAmount(v)
		out.Fees = &f
	}

	if items, ok := doc["line_items"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out.LineItems = append(out.LineItems, coerceLineItem(m))
		}
	}

	for _, p := range asStringSlice(doc["people_found"]) {
		out.PeopleFound = append(out.PeopleFound, p)
	}
	for _, a := range asStringSlice(doc["digital_assets"]) {
		out.DigitalAssets = append(out.DigitalAssets, a)
	}

	if ev, ok := doc["event_details"].(map[string]any); ok {
		out.EventDetails = &model.EventDetails{
			Name:            asString(ev["name"]),
			Date:            CoerceDate(asString(ev["date"])),
			Venue:           asString(ev["venue"]),
			Confidence:      coerceConfidence(ev["confidence"]),
			DetectionMethod: "provider",
		}
	}

	augmentEvent(out)
	return out
}

func coerceLineItem(m map[string]any) model.LineItem {
	li := model.LineItem{
		Description:         asString(m["description"]),
		Quantity:            1,
		Category:            asString(m["category"]),
		SuggestedObjectType: asString(m["suggested_object_type"]),
	}
	if q, ok := coerceNumber(m["quantity"]); ok && q > 0 {
		li.Quantity = q
	}
	if p, ok := coerceNumber(m["unit_price"]); ok {
		li.UnitPrice = p
	}
	if t, ok := coerceNumber(m["total_price"]); ok {
		li.TotalPrice = t
	} else {
		li.TotalPrice = li.UnitPrice * li.Quantity
	}
	return li
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range arr {
		if s := asString(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}
