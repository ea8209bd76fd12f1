package pipeline

import (
	"time"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Input is what a caller hands to the pipeline for one invoice.
type Input struct {
	Filename   string
	ImageBytes []byte
	// OutputPath is the target workbook; empty means Config.OutputPath.
	OutputPath string
}

// Output is the result of a successful run.
type Output struct {
	ID          string               `json:"id,omitempty"` // journal record ID, empty when journaling is off or failed
	Invoice     *invoice.InvoiceData `json:"invoice_data"`
	RowsWritten int                  `json:"rows_written"`
	OutputPath  string               `json:"output_path"`
}

// State is threaded through the stages. Each stage receives a copy, fills in
// its own fields and returns the updated copy.
type State struct {
	// input
	Filename   string
	ImageBytes []byte

	// extract
	RawExtraction map[string]any

	// validate
	Invoice *invoice.InvoiceData

	// write
	OutputPath  string
	RowsWritten int

	// Err is the error that stopped the run, if any
	Err error
}

// Record is the journal entry kept for every invoice written to a workbook
type Record struct {
	ID          string               `json:"id"`
	Filename    string               `json:"filename"`
	StoredFile  string               `json:"stored_file,omitempty"` // name of the archived image in Storage
	ContentType string               `json:"content_type"`
	OutputPath  string               `json:"output_path"`
	RowsWritten int                  `json:"rows_written"`
	Invoice     *invoice.InvoiceData `json:"invoice_data"`
	CreatedAt   time.Time            `json:"created_at"`
}
