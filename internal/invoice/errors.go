package invoice

import (
	"fmt"
	"strings"
)

// FieldError describes one structural problem in a raw extraction.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SchemaValidationError is returned when a raw extraction does not have the
// shape of an invoice. Nothing is written for an invoice that fails
// validation.
type SchemaValidationError struct {
	Fields []FieldError
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invoice schema validation failed: " + strings.Join(parts, "; ")
}

// FieldNames returns the offending field paths, e.g. "items[2].item".
func (e *SchemaValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}
