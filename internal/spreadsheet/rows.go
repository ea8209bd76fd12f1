// Package spreadsheet appends flattened invoices to an .xlsx workbook.
package spreadsheet

import (
	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Columns is the fixed column order of the workbook. It is written as the
// header row when a workbook is created and must stay stable across appends.
var Columns = []string{
	"invoice_number",
	"invoice_date",
	"email",
	"billed_by",
	"billed_by_address",
	"billed_to",
	"billed_to_address",
	"currency",
	"subtotal",
	"tax",
	"total",
	"item",
	"quantity",
	"rate",
	"amount",
}

// Row holds one value per entry in Columns. A nil value is an empty cell.
type Row []any

// Flatten turns an invoice into rows: one per line item, each repeating the
// header fields, or a single header-only row when there are no items.
func Flatten(data *invoice.InvoiceData) []Row {
	header := data.HeaderValues()

	if data.ItemCount() == 0 {
		row := make(Row, 0, len(Columns))
		row = append(row, header...)
		row = append(row, nil, nil, nil, nil)
		return []Row{row}
	}

	rows := make([]Row, 0, len(data.Items))
	for _, it := range data.Items {
		row := make(Row, 0, len(Columns))
		row = append(row, header...)
		row = append(row, it.Values()...)
		rows = append(rows, row)
	}
	return rows
}
