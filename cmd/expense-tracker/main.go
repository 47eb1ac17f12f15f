package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/statement"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// parseLogLevel maps a --log-level value to a slog level
func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("expense-tracker")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "expense-tracker.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Storage directory path")
		ocrEngine      = fs.StringLong("ocr-engine", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		tesseractCmd   = fs.StringLong("tesseract-cmd", "", "Path to the tesseract binary (or set TESSERACT_CMD env var)")
		tesseractLang  = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		ocrTimeout     = fs.DurationLong("ocr-timeout", 60*time.Second, "Maximum time for one receipt extraction")
		ocrConcurrency = fs.IntLong("ocr-concurrency", 2, "Maximum concurrent OCR calls")
		onRowError     = fs.StringLong("on-row-error", "skip", "Unparseable statement rows: 'skip' or 'abort'")
		maxUploadMB    = fs.IntLong("max-upload-size", 50, "Maximum upload size in MB")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rowPolicy, err := statement.ParseRowErrorPolicy(*onRowError)
	if err != nil {
		slog.Error("Invalid row error policy", "error", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := expense.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR engine
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
	engine, err := scanning.NewEngine(cfg)
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "error", err)
		os.Exit(1)
	}
	recognizer := scanning.NewPool(engine, *ocrConcurrency)
	defer recognizer.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := expense.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	expenseService := expense.NewService(
		db,
		store,
		scanning.NewExtractor(recognizer),
		statement.NewImporter(statement.WithRowErrorPolicy(rowPolicy)),
		*ocrTimeout,
	)

	// Initialize server
	basicAuth := expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := expense.NewServer(expenseService, basicAuth, int64(*maxUploadMB)<<20)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"ocr_engine", recognizer.Name(),
		"on_row_error", rowPolicy,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), *ocrTimeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
