package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reSlashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)

// CoerceDate accepts ISO YYYY-MM-DD or M/D/YY-style dates and returns the
// ISO form. Two-digit years below 70 land in 20xx, the rest in 19xx.
// Unparseable input returns "" rather than a fabricated guess.
func CoerceDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02")
	}
	m := reSlashDate.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		if year < 70 {
			year += 2000
		} else {
			year += 1900
		}
	}
	iso := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	// Reject impossible dates like 13/45/2024 by round-tripping.
	if _, err := time.Parse("2006-01-02", iso); err != nil {
		return ""
	}
	return iso
}

var reAmountNoise = regexp.MustCompile(`[$€£¥,\s]`)

// CoerceAmount strips currency symbols and thousands separators and parses
// the remainder. Unparseable values coerce to 0.
func CoerceAmount(v any) float64 {
	f, ok := coerceNumber(v)
	if !ok {
		return 0
	}
	return f
}

func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := reAmountNoise.ReplaceAllString(strings.TrimSpace(t), "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// coerceConfidence keeps provider values inside [0,1] and substitutes the
// fixed low default otherwise.
func coerceConfidence(v any) float64 {
	f, ok := coerceNumber(v)
	if !ok || f < 0 || f > 1 {
		return FallbackConfidence
	}
	return f
}
