package statement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errEmptyValue = errors.New("empty value")

// statementDateLayouts covers the date styles seen in bank exports.
// US month-first is preferred over day-first for ambiguous slashes.
var statementDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006",
	"1/2/06",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006/1/2",
	"1-2-2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"20060102",
}

// parseStatementDate parses a date cell and drops any time of day
func parseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyValue
	}
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// parseStatementAmount parses an amount cell into its absolute value.
// Currency symbols, thousands separators and accounting parentheses are accepted.
func parseStatementAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errEmptyValue
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	s = strings.TrimPrefix(s, "+")

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number")
	}
	return amount.Abs(), nil
}
