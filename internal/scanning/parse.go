package scanning

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/model"
)

var (
	datePattern   = regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`)
	amountPattern = regexp.MustCompile(`(?i)TOTAL[\s:]*\$?\s*(\d{1,3}(?:,\d{3})+|\d+)\.(\d{2})(?:\D|$)`)
)

// receiptDateLayouts are tried in order; the first that parses wins.
// Month-first comes before day-first, so "03/04/2024" is March 4.
var receiptDateLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"2/1/2006",
	"2/1/06",
}

// ParseText recovers date, total and merchant from OCR text. Each field is
// parsed independently and left absent when its heuristic finds nothing.
func ParseText(text string) model.PartialExpense {
	return model.PartialExpense{
		Amount:      parseAmount(text),
		OccurredOn:  parseDate(text),
		Description: parseDescription(text),
	}
}

// parseDate returns the first numeric date in the text, or nil.
// A match cut out of a longer digit run (such as "24-03-04" inside
// "2024-03-04") is not a date.
func parseDate(text string) *time.Time {
	loc := datePattern.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	match := text[loc[0]:loc[1]]
	if isDigitAt(text, loc[0]-1) || isDigitAt(text, loc[1]) {
		slog.Debug("Ignoring date-like text inside a longer number", "text", match)
		return nil
	}

	normalized := strings.ReplaceAll(match, "-", "/")
	for _, layout := range receiptDateLayouts {
		if d, err := time.Parse(layout, normalized); err == nil {
			return &d
		}
	}

	slog.Debug("Found date-like text that no layout accepts", "text", match)
	return nil
}

func isDigitAt(text string, i int) bool {
	return i >= 0 && i < len(text) && text[i] >= '0' && text[i] <= '9'
}

// parseAmount returns the first amount following a TOTAL label
func parseAmount(text string) decimal.NullDecimal {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}

	whole := strings.ReplaceAll(m[1], ",", "")
	amount, err := decimal.NewFromString(whole + "." + m[2])
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount)
}

// parseDescription returns the first non-blank line, usually the store name
func parseDescription(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
