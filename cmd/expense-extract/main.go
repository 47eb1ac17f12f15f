package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/model"
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/statement"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const (
	kindAuto      = "auto"
	kindReceipt   = "receipt"
	kindStatement = "statement"
)

// Exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitIncomplete = 2
)

type receiptOutput struct {
	Expense *model.CandidateExpense `json:"expense,omitempty"`
	Missing []string                `json:"missing,omitempty"`
	Partial *model.PartialExpense   `json:"partial,omitempty"`
	RawText string                  `json:"raw_text,omitempty"`
}

type skippedRow struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Value string `json:"value"`
	Error string `json:"error"`
}

type statementOutput struct {
	Mapping  statement.ColumnMapping  `json:"mapping"`
	Expenses []model.CandidateExpense `json:"expenses"`
	Skipped  []skippedRow             `json:"skipped"`
}

// detectKind picks the pipeline for path when --kind is auto
func detectKind(kind, path string) string {
	if kind != kindAuto {
		return kind
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return kindStatement
	}
	return kindReceipt
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runReceipt(ctx context.Context, cfg scanning.EngineConfig, timeout time.Duration, path string) int {
	engine, err := scanning.NewEngine(cfg)
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "error", err)
		return exitFailure
	}
	defer engine.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	candidate, err := scanning.NewExtractor(engine).Extract(ctx, path)
	if err != nil {
		var incomplete *scanning.IncompleteExtractionError
		if errors.As(err, &incomplete) {
			if err := printJSON(receiptOutput{
				Missing: incomplete.Missing(),
				Partial: &incomplete.Partial,
				RawText: incomplete.RawText,
			}); err != nil {
				slog.Error("Failed to write output", "error", err)
				return exitFailure
			}
			return exitIncomplete
		}
		slog.Error("Failed to extract receipt", "path", path, "error", err)
		return exitFailure
	}

	if candidate.Description == "" {
		candidate.Description = scanning.DefaultDescription
	}
	if err := printJSON(receiptOutput{Expense: candidate}); err != nil {
		slog.Error("Failed to write output", "error", err)
		return exitFailure
	}
	return exitOK
}

func runStatement(policy statement.RowErrorPolicy, path string) int {
	importer := statement.NewImporter(statement.WithRowErrorPolicy(policy))

	mapping, err := importer.Inspect(path)
	if err != nil {
		slog.Error("Failed to read statement", "path", path, "error", err)
		return exitFailure
	}
	if mapping.Mapped() == 0 {
		slog.Error("No recognizable columns", "path", path, "headers", mapping.Headers)
		return exitFailure
	}
	slog.Debug("Column mapping", "columns", mapping.Columns)

	result, err := importer.ImportRows(path)
	if err != nil {
		slog.Error("Failed to import statement", "path", path, "error", err)
		return exitFailure
	}

	out := statementOutput{
		Mapping:  result.Mapping,
		Expenses: result.Expenses,
		Skipped:  make([]skippedRow, 0, len(result.Skipped)),
	}
	if out.Expenses == nil {
		out.Expenses = []model.CandidateExpense{}
	}
	for _, rowErr := range result.Skipped {
		out.Skipped = append(out.Skipped, skippedRow{
			Row:   rowErr.Row,
			Field: rowErr.Field,
			Value: rowErr.Value,
			Error: rowErr.Err.Error(),
		})
	}
	if err := printJSON(out); err != nil {
		slog.Error("Failed to write output", "error", err)
		return exitFailure
	}
	return exitOK
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(exitOK)
		}
	}

	fs := ff.NewFlagSet("expense-extract")
	var (
		kind          = fs.StringLong("kind", kindAuto, "Input kind: 'auto', 'receipt' or 'statement'")
		ocrEngine     = fs.StringLong("ocr-engine", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		tesseractCmd  = fs.StringLong("tesseract-cmd", "", "Path to the tesseract binary (or set TESSERACT_CMD env var)")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name")
		ocrTimeout    = fs.DurationLong("ocr-timeout", 60*time.Second, "Maximum time for the extraction")
		onRowError    = fs.StringLong("on-row-error", "skip", "Unparseable statement rows: 'skip' or 'abort'")
		verbose       = fs.BoolLong("verbose", "Enable debug logging")
		_             = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitFailure)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "usage: expense-extract [flags] <file>")
		os.Exit(exitFailure)
	}
	path := args[0]

	switch detectKind(*kind, path) {
	case kindReceipt:
		cfg := scanning.EngineConfig{
			Kind:          *ocrEngine,
			TesseractCmd:  *tesseractCmd,
			TesseractLang: *tesseractLang,
			GeminiKey:     *geminiKey,
			GeminiModel:   *geminiModel,
			OllamaURL:     *ollamaURL,
			OllamaModel:   *ollamaModel,
		}
		if cfg.TesseractCmd == "" {
			cfg.TesseractCmd = os.Getenv("TESSERACT_CMD")
		}
		if cfg.GeminiKey == "" {
			cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
		}
		os.Exit(runReceipt(context.Background(), cfg, *ocrTimeout, path))
	case kindStatement:
		policy, err := statement.ParseRowErrorPolicy(*onRowError)
		if err != nil {
			slog.Error("Invalid row error policy", "error", err)
			os.Exit(exitFailure)
		}
		os.Exit(runStatement(policy, path))
	default:
		slog.Error("Invalid kind", "kind", *kind, "valid", "auto, receipt or statement")
		os.Exit(exitFailure)
	}
}
