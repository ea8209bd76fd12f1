package invoice

import (
	"fmt"
	"log/slog"
)

// Validate imposes the invoice schema on a decoded JSON object.
//
// Header fields are all optional: a missing value, an explicit null or a
// value of the wrong kind becomes null. Numeric fields are kept as the model
// produced them; turning them into numbers is Normalize's job. The only
// structural requirement is on items: when present it must be an array of
// objects, each with a non-null string "item".
func Validate(raw map[string]any) (*InvoiceData, error) {
	data := &InvoiceData{
		InvoiceNumber:   stringField(raw, "invoice_number"),
		InvoiceDate:     stringField(raw, "invoice_date"),
		Email:           stringField(raw, "email"),
		BilledBy:        stringField(raw, "billed_by"),
		BilledByAddress: stringField(raw, "billed_by_address"),
		BilledTo:        stringField(raw, "billed_to"),
		BilledToAddress: stringField(raw, "billed_to_address"),
		Currency:        stringField(raw, "currency"),
		Subtotal:        RawNumber(raw["subtotal"]),
		Tax:             RawNumber(raw["tax"]),
		Total:           RawNumber(raw["total"]),
		Items:           []InvoiceItem{},
	}

	items, problems := validateItems(raw["items"])
	if len(problems) > 0 {
		return nil, &SchemaValidationError{Fields: problems}
	}
	data.Items = items

	return data, nil
}

// stringField returns the string at key. Any other non-null value is
// dropped, so a number-typed invoice number reaches the workbook as blank.
func stringField(raw map[string]any, key string) *string {
	v := raw[key]
	s, ok := v.(string)
	if !ok {
		if v != nil {
			slog.Debug("Dropping non-string header field", "field", key, "kind", kindOf(v))
		}
		return nil
	}
	return &s
}

func validateItems(v any) ([]InvoiceItem, []FieldError) {
	items := []InvoiceItem{}
	if v == nil {
		return items, nil
	}

	list, ok := v.([]any)
	if !ok {
		return nil, []FieldError{{Field: "items", Message: fmt.Sprintf("expected an array, got %s", kindOf(v))}}
	}

	var problems []FieldError
	for i, elem := range list {
		path := fmt.Sprintf("items[%d]", i)

		obj, ok := elem.(map[string]any)
		if !ok {
			problems = append(problems, FieldError{Field: path, Message: fmt.Sprintf("expected an object, got %s", kindOf(elem))})
			continue
		}

		name, present := obj["item"]
		if !present || name == nil {
			problems = append(problems, FieldError{Field: path + ".item", Message: "field required"})
			continue
		}
		s, ok := name.(string)
		if !ok {
			problems = append(problems, FieldError{Field: path + ".item", Message: fmt.Sprintf("expected a string, got %s", kindOf(name))})
			continue
		}

		items = append(items, InvoiceItem{
			Item:     s,
			Quantity: RawNumber(obj["quantity"]),
			Rate:     RawNumber(obj["rate"]),
			Amount:   RawNumber(obj["amount"]),
		})
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return items, nil
}

// kindOf names the JSON kind of a decoded value for error messages.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "number"
	}
}
