package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/model"
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/statement"
)

var (
	// ErrInvalidExpense is returned when an expense fails validation before saving
	ErrInvalidExpense = errors.New("invalid expense")
	// ErrInvalidStatement is returned when no statement column matches a known header
	ErrInvalidStatement = errors.New("invalid CSV structure: no recognizable columns")
)

// ReceiptExtractor turns a stored receipt image into a candidate expense
type ReceiptExtractor interface {
	Extract(ctx context.Context, path string) (*model.CandidateExpense, error)
}

// StatementImporter turns a stored statement file into candidate expenses
type StatementImporter interface {
	Validate(path string) bool
	ImportRows(path string) (*statement.Result, error)
}

// IDGenerator generates unique IDs for expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ReviewError is returned by ScanReceipt when extraction was incomplete.
// The upload is kept so the user can finish the expense and save it with
// CreateExpense, referencing Filename.
type ReviewError struct {
	ID          string
	Filename    string
	ContentType string
	Extraction  *scanning.IncompleteExtractionError
}

func (e *ReviewError) Error() string {
	return fmt.Sprintf("receipt %s needs review: %v", e.Filename, e.Extraction)
}

func (e *ReviewError) Unwrap() error { return e.Extraction }

// ImportSummary is the outcome of importing one statement
type ImportSummary struct {
	Imported []*model.Expense           `json:"imported"`
	Skipped  []*statement.RowParseError `json:"-"`
	Mapping  statement.ColumnMapping    `json:"mapping"`
}

// Service coordinates uploads, the extraction pipelines and persistence
type Service struct {
	db          DB
	storage     Storage
	extractor   ReceiptExtractor
	importer    StatementImporter
	idGenerator IDGenerator
	timeSource  TimeSource
	ocrTimeout  time.Duration
}

// NewService creates a new Service with UUIDs and the wall clock.
// ocrTimeout bounds each receipt extraction; zero means no deadline.
func NewService(db DB, storage Storage, extractor ReceiptExtractor, importer StatementImporter, ocrTimeout time.Duration) *Service {
	s := NewServiceWithDeps(db, storage, extractor, importer, &uuidGenerator{}, &defaultTimeSource{})
	s.ocrTimeout = ocrTimeout
	return s
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor ReceiptExtractor, importer StatementImporter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		importer:    importer,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename, fallback string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = fallback
	}
	return base + ext
}

// ScanReceipt stores a receipt upload and extracts a pending expense from it.
// The expense is not saved; the user confirms it through CreateExpense.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*model.Expense, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename, "receipt")), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	if s.ocrTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ocrTimeout)
		defer cancel()
	}

	candidate, err := s.extractor.Extract(ctx, s.storage.Path(savedName))
	if err != nil {
		var incomplete *scanning.IncompleteExtractionError
		if errors.As(err, &incomplete) {
			slog.Info("Receipt needs review",
				"filename", savedName,
				"missing", incomplete.Missing(),
			)
			return nil, &ReviewError{ID: id, Filename: savedName, ContentType: contentType, Extraction: incomplete}
		}

		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	description := candidate.Description
	if description == "" {
		description = scanning.DefaultDescription
	}

	return &model.Expense{
		ID:          id,
		Amount:      candidate.Amount,
		Description: description,
		OccurredOn:  candidate.OccurredOn,
		Source:      candidate.Source,
		Filename:    savedName,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// validateExpense checks the invariants every stored expense must hold
func validateExpense(expense *model.Expense) error {
	if expense.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidExpense)
	}
	if expense.OccurredOn.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidExpense)
	}
	switch expense.Source {
	case model.SourceReceipt, model.SourceCSVRow:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidExpense, expense.Source)
	}
	return nil
}

// CreateExpense saves an accepted (possibly edited) expense
func (s *Service) CreateExpense(expense *model.Expense) error {
	if expense.Source == "" {
		expense.Source = model.SourceReceipt
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	if expense.ID == "" {
		expense.ID = s.idGenerator.Generate()
	}
	if strings.TrimSpace(expense.Description) == "" && expense.Source == model.SourceReceipt {
		expense.Description = scanning.DefaultDescription
	}
	if expense.Filename != "" {
		expense.Filename = filepath.Base(expense.Filename)
	}

	now := s.timeSource.Now()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now

	if err := s.db.SaveExpense(expense); err != nil {
		return fmt.Errorf("saving expense to database: %w", err)
	}
	return nil
}

// ImportStatement stores a statement upload, imports its rows and saves them.
// The upload is removed afterwards; imported rows keep no link to it.
func (s *Service) ImportStatement(filename string, data []byte) (*ImportSummary, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename, "statement")), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}
	defer func() {
		if err := s.storage.Delete(savedName); err != nil {
			slog.Warn("Failed to delete statement upload", "filename", savedName, "error", err)
		}
	}()

	path := s.storage.Path(savedName)
	if !s.importer.Validate(path) {
		return nil, ErrInvalidStatement
	}

	result, err := s.importer.ImportRows(path)
	if err != nil {
		return nil, fmt.Errorf("importing statement: %w", err)
	}

	expenses := make([]*model.Expense, 0, len(result.Expenses))
	for _, candidate := range result.Expenses {
		expenses = append(expenses, &model.Expense{
			ID:          s.idGenerator.Generate(),
			Amount:      candidate.Amount,
			Description: candidate.Description,
			OccurredOn:  candidate.OccurredOn,
			Source:      candidate.Source,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := s.db.SaveExpenses(expenses); err != nil {
		return nil, fmt.Errorf("saving imported expenses: %w", err)
	}

	if len(result.Skipped) > 0 {
		slog.Warn("Skipped unparseable statement rows",
			"filename", filename,
			"skipped", len(result.Skipped),
			"imported", len(expenses),
		)
	}

	return &ImportSummary{
		Imported: expenses,
		Skipped:  result.Skipped,
		Mapping:  result.Mapping,
	}, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*model.Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (s *Service) ListExpenses() ([]*model.Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense and its receipt file, if any
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if expense.Filename != "" {
		if err := s.storage.Delete(expense.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", expense.Filename, "error", err)
		}
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the receipt file attached to an expense
func (s *Service) GetExpenseFile(id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}
	if expense.Filename == "" {
		return nil, "", fmt.Errorf("expense %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(expense.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense file: %w", err)
	}
	return data, expense.ContentType, nil
}
