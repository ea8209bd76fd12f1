package invoice

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// nonNumeric matches everything that can't be part of a plain decimal number
// (currency symbols, thousands separators, whitespace, letters).
var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// dateLayouts are tried in order; the first one that parses the whole string
// wins. Ambiguous strings such as "01-02-2025" therefore read as day-month.
var dateLayouts = []string{
	"Jan 2, 2006",     // Jan 23, 2025
	"January 2, 2006", // January 23, 2025
	"2 Jan 2006",      // 23 Jan 2025
	"2 January 2006",  // 23 January 2025
	"2-1-2006",
	"2/1/2006",
	"2006-1-2",
	"1/2/2006",
}

const isoDate = "2006-01-02"

// CoerceNumber turns a loosely typed value into a normalized Number. It never
// fails: anything that can't be read as a number becomes null.
func CoerceNumber(v any) Number {
	switch n := v.(type) {
	case nil:
		return Number{set: true}
	case Number:
		if n.set {
			return n
		}
		return CoerceNumber(n.raw)
	case float64:
		return NumberOf(n)
	case float32:
		return NumberOf(float64(n))
	case int:
		return NumberOf(float64(n))
	case int64:
		return NumberOf(float64(n))
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return NumberOf(f)
		}
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return Number{set: true}
	}
	s = nonNumeric.ReplaceAllString(s, "")
	switch s {
	case "", ".", "-", "-.":
		return Number{set: true}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Number{set: true}
	}
	return NumberOf(f)
}

// NormalizeDate rewrites a recognised date as YYYY-MM-DD. Unrecognised input
// is returned trimmed but otherwise unchanged.
func NormalizeDate(date *string) *string {
	if date == nil || *date == "" {
		return nil
	}
	s := strings.TrimSpace(*date)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			iso := t.Format(isoDate)
			return &iso
		}
	}
	return &s
}

// Normalize coerces the numeric fields of data and canonicalizes its date in
// place. Running it twice has the same effect as running it once.
func Normalize(data *InvoiceData) {
	data.Subtotal = CoerceNumber(data.Subtotal)
	data.Tax = CoerceNumber(data.Tax)
	data.Total = CoerceNumber(data.Total)

	for i := range data.Items {
		it := &data.Items[i]
		it.Quantity = CoerceNumber(it.Quantity)
		it.Rate = CoerceNumber(it.Rate)
		it.Amount = CoerceNumber(it.Amount)
	}

	data.InvoiceDate = NormalizeDate(data.InvoiceDate)
}

// ValidateAndNormalize validates raw and normalizes the result.
func ValidateAndNormalize(raw map[string]any) (*InvoiceData, error) {
	data, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	Normalize(data)
	return data, nil
}
