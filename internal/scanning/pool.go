package scanning

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many OCR calls run at once against a single engine
type Pool struct {
	engine TextRecognizer
	sem    *semaphore.Weighted
}

// NewPool wraps engine so that at most size calls are in flight
func NewPool(engine TextRecognizer, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		engine: engine,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

// Name returns the wrapped engine's name
func (p *Pool) Name() string {
	return p.engine.Name()
}

// RecognizeText waits for a free slot, then delegates to the engine
func (p *Pool) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for ocr slot: %w", err)
	}
	defer p.sem.Release(1)

	return p.engine.RecognizeText(ctx, img)
}

// Close closes the wrapped engine
func (p *Pool) Close() error {
	return p.engine.Close()
}
