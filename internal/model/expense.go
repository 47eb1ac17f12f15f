package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which pipeline produced an expense
type Source string

const (
	SourceReceipt Source = "RECEIPT"
	SourceCSVRow  Source = "CSV_ROW"
)

// CandidateExpense is an extracted expense awaiting acceptance by the user.
// Amount is never negative and OccurredOn is always a real calendar date.
type CandidateExpense struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OccurredOn  time.Time       `json:"occurred_on"`
	Source      Source          `json:"source"`
}

// PartialExpense holds whatever fields an extraction recovered.
// Each field is independently present or absent.
type PartialExpense struct {
	Amount      decimal.NullDecimal `json:"amount"`
	OccurredOn  *time.Time          `json:"occurred_on,omitempty"`
	Description string              `json:"description,omitempty"` // empty when absent
}

// Complete reports whether the fields required for a CandidateExpense are present
func (p PartialExpense) Complete() bool {
	return p.Amount.Valid && p.OccurredOn != nil
}

// Candidate builds a CandidateExpense from a complete PartialExpense.
// The second return value is false when a required field is missing.
func (p PartialExpense) Candidate(source Source) (CandidateExpense, bool) {
	if !p.Complete() {
		return CandidateExpense{}, false
	}
	return CandidateExpense{
		Amount:      p.Amount.Decimal.Abs(),
		Description: p.Description,
		OccurredOn:  *p.OccurredOn,
		Source:      source,
	}, true
}

// Expense is a persisted expense owned by the tracker
type Expense struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OccurredOn  time.Time       `json:"occurred_on"`
	Source      Source          `json:"source"`
	Filename    string          `json:"filename,omitempty"` // stored upload backing this expense, if any
	ContentType string          `json:"content_type,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
