package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

// maxUploadSize bounds the multipart form; phone photos and scanned PDFs
// easily reach tens of megabytes.
const maxUploadSize = int64(50 << 20)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps a pipeline error to the response code
func statusFor(err error) int {
	var (
		schemaErr  *invoice.SchemaValidationError
		formatErr  *scanning.FormatError
		imageErr   *scanning.ImageError
		serviceErr *scanning.ServiceError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &formatErr), errors.As(err, &imageErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &serviceErr):
		return http.StatusBadGateway
	case errors.Is(err, ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	records, err := s.pipeline.ListRecords()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeError(w, "Uploaded file is empty", http.StatusBadRequest)
		return
	}

	// A dropped client must not abandon a half-finished workbook write.
	out, err := s.pipeline.Run(context.WithoutCancel(r.Context()), Input{
		Filename:   header.Filename,
		ImageBytes: data,
	})
	if err != nil {
		slog.Error("Error processing invoice", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipeline.GetRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, "Invoice not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.pipeline.GetRecordFile(r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.DeleteRecord(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			writeError(w, "Invoice not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting invoice", "error", err)
		writeError(w, "Error deleting invoice", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownloadSpreadsheet(w http.ResponseWriter, r *http.Request) {
	path := s.pipeline.OutputPath()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, "No invoices have been written yet", http.StatusNotFound)
			return
		}
		slog.Error("Error opening workbook", "path", path, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), stat.ModTime(), f)
}
