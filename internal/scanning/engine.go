package scanning

import (
	"fmt"
	"log/slog"
)

// Engine names accepted by NewEngine
const (
	EngineTesseract = "tesseract"
	EngineGemini    = "gemini"
	EngineOllama    = "ollama"
)

// EngineConfig selects and configures an OCR engine
type EngineConfig struct {
	Kind string

	TesseractCmd  string
	TesseractLang string

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string
}

// NewEngine builds the recognizer named by cfg.Kind
func NewEngine(cfg EngineConfig) (TextRecognizer, error) {
	switch cfg.Kind {
	case EngineTesseract, "":
		slog.Info("Initializing Tesseract engine...", "cmd", cfg.TesseractCmd, "lang", cfg.TesseractLang)
		return NewTesseract(cfg.TesseractCmd, cfg.TesseractLang)
	case EngineGemini:
		slog.Info("Initializing Gemini engine...", "model", cfg.GeminiModel)
		return NewGemini(cfg.GeminiKey, cfg.GeminiModel)
	case EngineOllama:
		slog.Info("Initializing Ollama engine...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	}
	return nil, fmt.Errorf("invalid ocr engine %q: expected %s, %s or %s",
		cfg.Kind, EngineTesseract, EngineGemini, EngineOllama)
}
