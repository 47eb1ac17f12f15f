package expense

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/expense-tracker/internal/model"
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/statement"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusForError maps pipeline and service errors to HTTP status codes
func statusForError(err error) int {
	var (
		decodeErr    *scanning.ImageDecodeError
		ocrErr       *scanning.OcrEngineError
		malformedErr *statement.MalformedFileError
		unmappedErr  *statement.UnmappedColumnError
		rowErr       *statement.RowParseError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidExpense), errors.Is(err, ErrInvalidStatement):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr), errors.As(err, &malformedErr),
		errors.As(err, &unmappedErr), errors.As(err, &rowErr):
		return http.StatusBadRequest
	case errors.As(err, &ocrErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// readUpload reads the "file" field of a multipart upload.
// It writes the error response itself and returns ok=false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, header *multipart.FileHeader, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Please compress or resize it.", http.StatusRequestEntityTooLarge)
			return nil, nil, false
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return nil, nil, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return nil, nil, false
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return nil, nil, false
	}
	return data, header, true
}

// uploadContentType determines the content type of an upload, falling back to its extension
func uploadContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reviewResponse is returned when a receipt could only be partially read
type reviewResponse struct {
	Error       string               `json:"error"`
	ID          string               `json:"id"`
	Filename    string               `json:"filename"`
	ContentType string               `json:"content_type"`
	Missing     []string             `json:"missing"`
	Partial     model.PartialExpense `json:"partial"`
	RawText     string               `json:"raw_text"`
}

// handleScanReceipt extracts a pending expense from an uploaded receipt
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	data, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	expense, err := s.service.ScanReceipt(r.Context(), header.Filename, data, uploadContentType(header))
	if err != nil {
		var review *ReviewError
		if errors.As(err, &review) {
			writeJSON(w, http.StatusUnprocessableEntity, reviewResponse{
				Error:       "Could not extract required information from receipt",
				ID:          review.ID,
				Filename:    review.Filename,
				ContentType: review.ContentType,
				Missing:     review.Extraction.Missing(),
				Partial:     review.Extraction.Partial,
				RawText:     review.Extraction.RawText,
			})
			return
		}
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

// handleCreateExpense saves a confirmed expense
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var expense model.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.CreateExpense(&expense); err != nil {
		slog.Error("Error creating expense", "error", err)
		writeError(w, err.Error(), statusForError(err))
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

// handleListExpenses returns a list of all expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses()
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if expenses == nil {
		expenses = []*model.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(r.PathValue("id"))
	if err != nil {
		writeError(w, "Expense not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleGetExpenseFile returns the receipt file for an expense
func (s *Server) handleGetExpenseFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExpenseFile(r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExpense deletes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(r.PathValue("id")); err != nil {
		code := statusForError(err)
		if code == http.StatusNotFound {
			writeError(w, "Expense not found", code)
			return
		}
		slog.Error("Error deleting expense", "error", err)
		writeError(w, "Error deleting expense", code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type skippedRow struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Value string `json:"value"`
	Error string `json:"error"`
}

func newSkippedRow(e *statement.RowParseError) skippedRow {
	return skippedRow{
		Row:   e.Row,
		Field: e.Field,
		Value: e.Value,
		Error: e.Err.Error(),
	}
}

// rowErrorResponse is returned when an import stops at a bad row
type rowErrorResponse struct {
	Error string     `json:"error"`
	Row   skippedRow `json:"row"`
}

type importResponse struct {
	Imported []*model.Expense       `json:"imported"`
	Skipped  []skippedRow           `json:"skipped"`
	Mapping  statement.ColumnMapping `json:"mapping"`
}

// handleImportStatement imports expenses from an uploaded bank CSV
func (s *Server) handleImportStatement(w http.ResponseWriter, r *http.Request) {
	data, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	summary, err := s.service.ImportStatement(header.Filename, data)
	if err != nil {
		slog.Error("Error importing statement", "filename", header.Filename, "error", err)
		var rowErr *statement.RowParseError
		if errors.As(err, &rowErr) {
			writeJSON(w, http.StatusBadRequest, rowErrorResponse{
				Error: err.Error(),
				Row:   newSkippedRow(rowErr),
			})
			return
		}
		writeError(w, err.Error(), statusForError(err))
		return
	}

	resp := importResponse{
		Imported: summary.Imported,
		Skipped:  make([]skippedRow, 0, len(summary.Skipped)),
		Mapping:  summary.Mapping,
	}
	for _, rowErr := range summary.Skipped {
		resp.Skipped = append(resp.Skipped, newSkippedRow(rowErr))
	}
	writeJSON(w, http.StatusCreated, resp)
}
