package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
)

// Tesseract implements TextRecognizer by running the tesseract binary.
// The image is piped in as PNG and the text is read from stdout.
type Tesseract struct {
	cmdPath string
	lang    string
}

// NewTesseract creates a Tesseract recognizer for the binary at cmdPath.
// cmdPath may be a bare name resolved through PATH.
func NewTesseract(cmdPath string, lang string) (*Tesseract, error) {
	if cmdPath == "" {
		cmdPath = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{
		cmdPath: cmdPath,
		lang:    lang,
	}, nil
}

// Name returns the engine name
func (t *Tesseract) Name() string {
	return "tesseract"
}

// RecognizeText runs tesseract over img
func (t *Tesseract) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	pngData, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, t.cmdPath, "stdin", "stdout", "-l", t.lang)
	cmd.Stdin = bytes.NewReader(pngData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("running %s: %w", t.cmdPath, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("running %s: %w: %s", t.cmdPath, err, msg)
		}
		return "", fmt.Errorf("running %s: %w", t.cmdPath, err)
	}

	return stdout.String(), nil
}

// Close is a no-op; each call starts its own process
func (t *Tesseract) Close() error {
	return nil
}
