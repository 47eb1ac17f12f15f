package scanning

import (
	"context"
	"log/slog"
	"os"

	"github.com/zombor/expense-tracker/internal/model"
)

// DefaultDescription is what callers should use when a receipt has no
// recognizable store name. The extractor itself leaves the field empty.
const DefaultDescription = "Receipt"

// Extractor turns receipt images into candidate expenses.
// It is stateless and safe for concurrent use if its recognizer is.
type Extractor struct {
	recognizer TextRecognizer
}

// NewExtractor creates an Extractor backed by the given OCR engine
func NewExtractor(recognizer TextRecognizer) *Extractor {
	return &Extractor{recognizer: recognizer}
}

// Extract decodes the image at path, runs OCR over it and parses the text.
// It never modifies or deletes the file.
//
// Errors are *ImageDecodeError, *OcrEngineError or *IncompleteExtractionError.
func (e *Extractor) Extract(ctx context.Context, path string) (*model.CandidateExpense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Err: err}
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Err: err}
	}

	text, err := e.recognizer.RecognizeText(ctx, img)
	if err != nil {
		return nil, &OcrEngineError{Engine: e.recognizer.Name(), Err: err}
	}

	return e.ExtractText(text)
}

// ExtractText applies the receipt heuristics to text that was already recognized
func (e *Extractor) ExtractText(text string) (*model.CandidateExpense, error) {
	partial := ParseText(text)
	slog.Debug("Parsed receipt text",
		"amount_found", partial.Amount.Valid,
		"date_found", partial.OccurredOn != nil,
		"description", partial.Description,
	)

	candidate, ok := partial.Candidate(model.SourceReceipt)
	if !ok {
		return nil, &IncompleteExtractionError{Partial: partial, RawText: text}
	}
	return &candidate, nil
}
