package invoice

import (
	"encoding/json"
)

// InvoiceItem is a single line item. It has no identity beyond its position
// in InvoiceData.Items.
type InvoiceItem struct {
	Item     string `json:"item"`
	Quantity Number `json:"quantity"`
	Rate     Number `json:"rate"`
	Amount   Number `json:"amount"`
}

// InvoiceData is the structured result of one extraction
type InvoiceData struct {
	InvoiceNumber   *string `json:"invoice_number"`
	InvoiceDate     *string `json:"invoice_date"`
	Email           *string `json:"email"`
	BilledBy        *string `json:"billed_by"`
	BilledByAddress *string `json:"billed_by_address"`
	BilledTo        *string `json:"billed_to"`
	BilledToAddress *string `json:"billed_to_address"`
	Currency        *string `json:"currency"`

	Subtotal Number `json:"subtotal"`
	Tax      Number `json:"tax"`
	Total    Number `json:"total"`

	// Items is never nil once validated; an invoice without line items
	// carries an empty slice.
	Items []InvoiceItem `json:"items"`
}

// Number is a numeric invoice field. Until the invoice is normalized it may
// hold whatever JSON value the model produced ("₹3,000.00", 1500, null).
// After Normalize it is either a float64 or null.
type Number struct {
	raw   any
	value *float64
	set   bool
}

// RawNumber wraps an untyped JSON value for later coercion.
func RawNumber(v any) Number {
	return Number{raw: v}
}

// NumberOf returns a normalized Number holding f.
func NumberOf(f float64) Number {
	return Number{value: &f, set: true}
}

// Float returns the normalized value and whether it is non-null.
func (n Number) Float() (float64, bool) {
	if n.value == nil {
		return 0, false
	}
	return *n.value, true
}

// IsNull reports whether the number is null. A field that has not been
// normalized yet is null only when its raw value is.
func (n Number) IsNull() bool {
	if n.set {
		return n.value == nil
	}
	return n.raw == nil
}

// Normalized reports whether the value has been through CoerceNumber.
func (n Number) Normalized() bool {
	return n.set
}

// Raw returns the value the model produced, or the normalized float when the
// number has already been coerced.
func (n Number) Raw() any {
	if n.set {
		if n.value == nil {
			return nil
		}
		return *n.value
	}
	return n.raw
}

// Value returns a float64 or nil, suitable for writing to a cell.
func (n Number) Value() any {
	if f, ok := n.Float(); ok {
		return f
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Raw())
}

func (n *Number) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = CoerceNumber(v)
	return nil
}

// ItemCount returns the number of line items.
func (d *InvoiceData) ItemCount() int {
	return len(d.Items)
}

// str returns the string for a nullable header field, or nil.
func str(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// HeaderValues returns the header fields in spreadsheet column order.
func (d *InvoiceData) HeaderValues() []any {
	return []any{
		str(d.InvoiceNumber),
		str(d.InvoiceDate),
		str(d.Email),
		str(d.BilledBy),
		str(d.BilledByAddress),
		str(d.BilledTo),
		str(d.BilledToAddress),
		str(d.Currency),
		d.Subtotal.Value(),
		d.Tax.Value(),
		d.Total.Value(),
	}
}

// Values returns item, quantity, rate and amount in spreadsheet column order.
func (it InvoiceItem) Values() []any {
	return []any{it.Item, it.Quantity.Value(), it.Rate.Value(), it.Amount.Value()}
}
