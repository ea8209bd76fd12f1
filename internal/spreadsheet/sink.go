package spreadsheet

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Sink appends invoices to a workbook with a whole-file read-modify-write.
//
// Appends through one Sink are serialized. Separate processes writing the
// same path still race and need an external single-writer discipline.
type Sink struct {
	mu sync.Mutex
}

// NewSink creates a new Sink
func NewSink() *Sink {
	return &Sink{}
}

// Append writes the rows of data after the existing rows of the workbook at
// path, creating the workbook (and its directory) when needed. It returns
// the number of rows written and the absolute path of the workbook.
func (s *Sink) Append(data *invoice.InvoiceData, path string) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, "", errors.Wrapf(err, "resolving output path %q", path)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return 0, "", errors.Wrap(err, "creating output directory")
	}

	f, created, err := openWorkbook(absPath)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	existing, err := f.GetRows(sheet)
	if err != nil {
		return 0, "", errors.Wrapf(err, "reading rows of %s", absPath)
	}

	columns, err := ensureHeader(f, sheet, existing)
	if err != nil {
		return 0, "", err
	}

	last, err := lastRow(f, sheet)
	if err != nil {
		return 0, "", errors.Wrapf(err, "reading rows of %s", absPath)
	}
	nextRow := max(last+1, 2)

	rows := Flatten(data)
	for i, row := range rows {
		if err := writeRow(f, sheet, nextRow+i, columns, row); err != nil {
			return 0, "", err
		}
	}

	if err := save(f, absPath); err != nil {
		return 0, "", err
	}

	slog.Debug("Appended invoice rows",
		"path", absPath,
		"created", created,
		"existing_rows", max(last-1, 0),
		"rows_written", len(rows),
	)

	return len(rows), absPath, nil
}

// openWorkbook opens the workbook at path, or starts a new one if there is
// no file yet.
func openWorkbook(path string) (*excelize.File, bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return excelize.NewFile(), true, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "checking %s", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "opening workbook %s", path)
	}
	return f, false, nil
}

// ensureHeader maps each column name to its 1-based column number. An
// existing header is kept as is; columns it lacks are added after its last
// column. An empty sheet gets the canonical header.
func ensureHeader(f *excelize.File, sheet string, existing [][]string) (map[string]int, error) {
	var header []string
	if len(existing) > 0 {
		header = existing[0]
	}

	columns := make(map[string]int, len(Columns))
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, dup := columns[name]; !dup {
			columns[name] = i + 1
		}
	}

	next := len(header) + 1
	for _, name := range Columns {
		if _, ok := columns[name]; ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(next, 1)
		if err != nil {
			return nil, errors.Wrap(err, "addressing header cell")
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return nil, errors.Wrapf(err, "writing header %q", name)
		}
		columns[name] = next
		next++
	}

	return columns, nil
}

// lastRow returns the number of the last row element in the sheet. Unlike
// GetRows it counts rows whose cells are all blank, so an all-null invoice
// keeps its row.
func lastRow(f *excelize.File, sheet string) (int, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Error(); err != nil {
		rows.Close()
		return 0, err
	}
	return n, rows.Close()
}

// writeRow writes the non-nil values of row. A row with no values still gets
// a blank string cell in its first column so the row survives the save.
func writeRow(f *excelize.File, sheet string, rowNum int, columns map[string]int, row Row) error {
	wrote := false
	for i, v := range row {
		if v == nil {
			continue
		}
		if err := setCell(f, sheet, columns[Columns[i]], rowNum, v); err != nil {
			return err
		}
		wrote = true
	}
	if !wrote {
		return setCell(f, sheet, columns[Columns[0]], rowNum, "")
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, rowNum int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, rowNum)
	if err != nil {
		return errors.Wrap(err, "addressing cell")
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return errors.Wrapf(err, "writing cell %s", cell)
	}
	return nil
}

// save writes the workbook next to path and renames it into place, so a
// failed write never leaves a truncated workbook behind.
func save(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing workbook")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return errors.Wrap(err, "setting workbook permissions")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "replacing workbook")
	}
	return nil
}
