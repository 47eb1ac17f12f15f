package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/zombor/expense-tracker/internal/model"
)

// RowErrorPolicy decides what happens when a data row cannot be parsed
type RowErrorPolicy int

const (
	// SkipRow records the failure and continues with the next row
	SkipRow RowErrorPolicy = iota
	// AbortImport stops at the first bad row and returns its error
	AbortImport
)

// ParseRowErrorPolicy parses "skip" or "abort"
func ParseRowErrorPolicy(s string) (RowErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "":
		return SkipRow, nil
	case "abort":
		return AbortImport, nil
	}
	return SkipRow, fmt.Errorf("invalid row error policy %q: expected skip or abort", s)
}

func (p RowErrorPolicy) String() string {
	if p == AbortImport {
		return "abort"
	}
	return "skip"
}

// Option configures an Importer
type Option func(*Importer)

// WithRowErrorPolicy sets how unparseable rows are handled
func WithRowErrorPolicy(p RowErrorPolicy) Option {
	return func(i *Importer) {
		i.onRowError = p
	}
}

// Importer turns bank CSV exports into candidate expenses.
// It holds no per-file state and is safe for concurrent use.
type Importer struct {
	onRowError RowErrorPolicy
}

// NewImporter creates an Importer. Unparseable rows are skipped by default.
func NewImporter(opts ...Option) *Importer {
	i := &Importer{onRowError: SkipRow}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Result is the outcome of importing one file
type Result struct {
	Expenses []model.CandidateExpense
	Skipped  []*RowParseError // only populated under SkipRow
	Mapping  ColumnMapping
}

// Validate reports whether at least one canonical field maps to a column.
// Passing validation does not mean ImportRows will succeed; see
// ColumnMapping.Importable for the stricter check.
func (i *Importer) Validate(path string) bool {
	mapping, err := i.Inspect(path)
	if err != nil {
		slog.Debug("Statement failed validation", "path", path, "error", err)
		return false
	}
	return mapping.Mapped() > 0
}

// Inspect reads the header row and returns the column mapping
func (i *Importer) Inspect(path string) (ColumnMapping, error) {
	header, _, err := readTable(path)
	if err != nil {
		return ColumnMapping{}, err
	}
	return newColumnMapping(header), nil
}

// ImportRows parses every data row into a candidate expense, in file order.
// A header-only file yields an empty result. Date and amount columns must
// both be mapped, otherwise an *UnmappedColumnError is returned.
func (i *Importer) ImportRows(path string) (*Result, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	mapping := newColumnMapping(header)
	if err := mapping.Importable(); err != nil {
		return nil, err
	}

	result := &Result{
		Expenses: make([]model.CandidateExpense, 0, len(rows)),
		Mapping:  mapping,
	}
	for idx, row := range rows {
		expense, rowErr := parseRow(mapping, idx+1, row)
		if rowErr != nil {
			if i.onRowError == AbortImport {
				return nil, rowErr
			}
			slog.Debug("Skipping statement row", "path", path, "row", rowErr.Row, "error", rowErr)
			result.Skipped = append(result.Skipped, rowErr)
			continue
		}
		result.Expenses = append(result.Expenses, expense)
	}

	return result, nil
}

// parseRow builds a candidate expense from one data row
func parseRow(mapping ColumnMapping, rowNum int, row []string) (model.CandidateExpense, *RowParseError) {
	dateValue, _ := mapping.value(row, FieldDate)
	date, err := parseStatementDate(dateValue)
	if err != nil {
		return model.CandidateExpense{}, &RowParseError{Row: rowNum, Field: FieldDate, Value: dateValue, Err: err}
	}

	amountValue, _ := mapping.value(row, FieldAmount)
	amount, err := parseStatementAmount(amountValue)
	if err != nil {
		return model.CandidateExpense{}, &RowParseError{Row: rowNum, Field: FieldAmount, Value: amountValue, Err: err}
	}

	description, _ := mapping.value(row, FieldDescription)

	return model.CandidateExpense{
		Amount:      amount,
		Description: strings.TrimSpace(description),
		OccurredOn:  date,
		Source:      model.SourceCSVRow,
	}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readTable loads the whole file and splits it into header and data rows
func readTable(path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &MalformedFileError{Path: path, Err: err}
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, nil, &MalformedFileError{Path: path, Err: errors.New("file is not valid UTF-8")}
	}

	// Memo cells in bank exports often carry bare quotes (12" PIZZA)
	cr := csv.NewReader(bytes.NewReader(data))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, &MalformedFileError{Path: path, Err: fmt.Errorf("reading CSV: %w", err)}
	}

	if len(records) == 0 || !hasColumns(records[0]) {
		return nil, nil, &MalformedFileError{Path: path, Err: errors.New("no columns found")}
	}

	return records[0], records[1:], nil
}

func hasColumns(header []string) bool {
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			return true
		}
	}
	return false
}
