package scanning

import (
	"context"
	"image"
)

// TextRecognizer is the OCR engine boundary. Implementations turn a decoded
// image into plain text and must not retry internally.
type TextRecognizer interface {
	// RecognizeText returns the text found in img, lines separated by '\n'
	RecognizeText(ctx context.Context, img image.Image) (string, error)
	// Name identifies the engine in logs and errors
	Name() string
	// Close releases any resources held by the engine
	Close() error
}
