package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/scanning"
	"github.com/zombor/invoice-extractor/internal/spreadsheet"
)

// Sink appends a normalized invoice to the workbook at path
type Sink interface {
	Append(data *invoice.InvoiceData, path string) (rowsWritten int, absPath string, err error)
}

// IDGenerator generates unique IDs for journal records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Stage is one step of the pipeline. It reads the fields it needs from the
// state and returns a copy with its own output filled in.
type Stage func(ctx context.Context, st State) (State, error)

// Pipeline extracts, validates and writes one invoice at a time
type Pipeline struct {
	config      Config
	extractor   scanning.Extractor
	sink        Sink
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// New builds a Pipeline from cfg. A missing model credential surfaces here
// as a scanning.ConfigurationError. db and storage may be nil, which turns
// journaling off.
func New(cfg Config, db DB, storage Storage) (*Pipeline, error) {
	extractor, err := scanning.New(cfg.Extraction)
	if err != nil {
		return nil, err
	}
	return NewPipeline(cfg, extractor, spreadsheet.NewSink(), db, storage), nil
}

// NewPipeline creates a Pipeline with default ID generator and time source
func NewPipeline(cfg Config, extractor scanning.Extractor, sink Sink, db DB, storage Storage) *Pipeline {
	return NewPipelineWithDeps(cfg, extractor, sink, db, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewPipelineWithDeps creates a Pipeline with custom dependencies for testing
func NewPipelineWithDeps(cfg Config, extractor scanning.Extractor, sink Sink, db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Pipeline {
	return &Pipeline{
		config:      cfg.withDefaults(),
		extractor:   extractor,
		sink:        sink,
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// OutputPath returns the configured default workbook path
func (p *Pipeline) OutputPath() string {
	return p.config.OutputPath
}

// Close releases the extractor
func (p *Pipeline) Close() error {
	return p.extractor.Close()
}

// Run processes one invoice: extract, then validate and normalize, then
// append to the workbook. The stages run strictly in order and the first
// failure is returned; nothing is written when extraction or validation
// fails.
func (p *Pipeline) Run(ctx context.Context, in Input) (Output, error) {
	st, err := p.Execute(ctx, State{
		Filename:   in.Filename,
		ImageBytes: in.ImageBytes,
		OutputPath: in.OutputPath,
	})
	if err != nil {
		return Output{}, err
	}

	return Output{
		ID:          p.journal(st),
		Invoice:     st.Invoice,
		RowsWritten: st.RowsWritten,
		OutputPath:  st.OutputPath,
	}, nil
}

// Execute runs the stages over st and returns the final state. On failure
// the returned state carries the error in Err.
func (p *Pipeline) Execute(ctx context.Context, st State) (State, error) {
	stages := []struct {
		name string
		run  Stage
	}{
		{"extract", p.Extract},
		{"validate", p.Validate},
		{"write", p.Write},
	}

	for _, stage := range stages {
		next, err := stage.run(ctx, st)
		if err != nil {
			slog.Error("Invoice pipeline failed",
				"stage", stage.name,
				"filename", st.Filename,
				"file_size", len(st.ImageBytes),
				"error", err,
			)
			st.Err = errors.Wrapf(err, "%s stage", stage.name)
			return st, st.Err
		}
		st = next
	}
	return st, nil
}

// Extract fills RawExtraction from Filename and ImageBytes
func (p *Pipeline) Extract(ctx context.Context, st State) (State, error) {
	if len(st.ImageBytes) == 0 {
		return st, errors.New("no image data")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := p.timeSource.Now()
	raw, err := p.extractor.Extract(ctx, st.Filename, st.ImageBytes)
	if err != nil {
		return st, err
	}
	slog.Info("Extracted invoice fields", "filename", st.Filename, "keys", len(raw), "duration", p.timeSource.Now().Sub(start))

	st.RawExtraction = raw
	return st, nil
}

// Validate fills Invoice from RawExtraction
func (p *Pipeline) Validate(_ context.Context, st State) (State, error) {
	data, err := invoice.ValidateAndNormalize(st.RawExtraction)
	if err != nil {
		return st, err
	}
	st.Invoice = data
	return st, nil
}

// Write appends Invoice to the workbook and fills OutputPath and RowsWritten
func (p *Pipeline) Write(_ context.Context, st State) (State, error) {
	path := st.OutputPath
	if path == "" {
		path = p.config.OutputPath
	}

	written, absPath, err := p.sink.Append(st.Invoice, path)
	if err != nil {
		return st, err
	}
	slog.Info("Wrote invoice rows", "path", absPath, "rows", written)

	st.OutputPath = absPath
	st.RowsWritten = written
	return st, nil
}

// journal archives the image and records the run. The workbook has already
// been written, so failures here are logged and never fail the run.
func (p *Pipeline) journal(st State) string {
	if p.db == nil {
		return ""
	}

	id := p.idGenerator.Generate()

	var storedFile string
	if p.storage != nil {
		saved, err := p.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(st.Filename)), st.ImageBytes)
		if err != nil {
			slog.Warn("Failed to archive invoice image", "filename", st.Filename, "error", err)
		} else {
			storedFile = saved
		}
	}

	record := &Record{
		ID:          id,
		Filename:    st.Filename,
		StoredFile:  storedFile,
		ContentType: http.DetectContentType(st.ImageBytes),
		OutputPath:  st.OutputPath,
		RowsWritten: st.RowsWritten,
		Invoice:     st.Invoice,
		CreatedAt:   p.timeSource.Now(),
	}

	if err := p.db.SaveRecord(record); err != nil {
		slog.Warn("Failed to journal invoice", "id", id, "error", err)
		if storedFile != "" {
			p.storage.Delete(storedFile)
		}
		return ""
	}
	return id
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	// Keep only alphanumeric, spaces, hyphens, and underscores
	base = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`).ReplaceAllString(base, "")
	base = regexp.MustCompile(`\s+`).ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}

	ext = regexp.MustCompile(`[^a-zA-Z0-9.]`).ReplaceAllString(ext, "")
	return base + ext
}

// GetRecord retrieves a journal record by ID
func (p *Pipeline) GetRecord(id string) (*Record, error) {
	if p.db == nil {
		return nil, errors.New("journal is disabled")
	}
	record, err := p.db.GetRecord(id)
	if err != nil {
		return nil, errors.Wrap(err, "getting record")
	}
	return record, nil
}

// ListRecords returns all journal records, newest first
func (p *Pipeline) ListRecords() ([]*Record, error) {
	if p.db == nil {
		return []*Record{}, nil
	}
	records, err := p.db.ListRecords()
	if err != nil {
		return nil, errors.Wrap(err, "listing records")
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// GetRecordFile retrieves the archived image of a record
func (p *Pipeline) GetRecordFile(id string) ([]byte, string, error) {
	record, err := p.GetRecord(id)
	if err != nil {
		return nil, "", err
	}
	if record.StoredFile == "" || p.storage == nil {
		return nil, "", errors.Newf("no archived image for record %s", id)
	}

	data, err := p.storage.Get(record.StoredFile)
	if err != nil {
		return nil, "", errors.Wrap(err, "getting archived image")
	}
	return data, record.ContentType, nil
}

// DeleteRecord removes a journal record and its archived image. Rows already
// written to the workbook stay where they are.
func (p *Pipeline) DeleteRecord(id string) error {
	record, err := p.GetRecord(id)
	if err != nil {
		return errors.Wrap(err, "getting record for deletion")
	}

	if record.StoredFile != "" && p.storage != nil {
		if err := p.storage.Delete(record.StoredFile); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete archived image", "file", record.StoredFile, "error", err)
		}
	}

	if err := p.db.DeleteRecord(id); err != nil {
		return errors.Wrap(err, "deleting record from database")
	}
	return nil
}
