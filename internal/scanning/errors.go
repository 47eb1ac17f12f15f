package scanning

import (
	"fmt"
	"strings"

	"github.com/zombor/expense-tracker/internal/model"
)

// ImageDecodeError means the receipt file is missing, unreadable, or not an image
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decoding receipt image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// OcrEngineError means the OCR engine failed to produce text
type OcrEngineError struct {
	Engine string
	Err    error
}

func (e *OcrEngineError) Error() string {
	return fmt.Sprintf("ocr engine %s: %v", e.Engine, e.Err)
}

func (e *OcrEngineError) Unwrap() error { return e.Err }

// IncompleteExtractionError is returned when OCR succeeded but the amount or
// date could not be recovered. It carries the partial fields and the raw
// text so the user can finish the expense by hand.
type IncompleteExtractionError struct {
	Partial model.PartialExpense
	RawText string
}

func (e *IncompleteExtractionError) Error() string {
	return fmt.Sprintf("incomplete receipt extraction: missing %s", strings.Join(e.Missing(), ", "))
}

// Missing lists the required fields that were not recovered
func (e *IncompleteExtractionError) Missing() []string {
	var missing []string
	if !e.Partial.Amount.Valid {
		missing = append(missing, "amount")
	}
	if e.Partial.OccurredOn == nil {
		missing = append(missing, "date")
	}
	return missing
}
