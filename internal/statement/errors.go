package statement

import (
	"fmt"
	"strings"
)

// MalformedFileError means the file could not be read as delimited data
type MalformedFileError struct {
	Path string
	Err  error
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("malformed statement file %s: %v", e.Path, e.Err)
}

func (e *MalformedFileError) Unwrap() error { return e.Err }

// UnmappedColumnError means a field required for import has no matching column
type UnmappedColumnError struct {
	Missing []string // canonical field names
	Headers []string // normalized headers found in the file
}

func (e *UnmappedColumnError) Error() string {
	return fmt.Sprintf("no column found for %s (headers: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Headers, ", "))
}

// RowParseError describes a data row that could not become an expense.
// Row is 1-based and counts data rows only, so the header is row 0.
type RowParseError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d: parsing %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *RowParseError) Unwrap() error { return e.Err }
