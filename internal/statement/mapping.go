package statement

import "strings"

// Canonical field names
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
)

// columnAliases lists the accepted headers per field, in priority order
var columnAliases = []struct {
	field   string
	aliases []string
}{
	{FieldDate, []string{"date", "transaction_date", "posted_date"}},
	{FieldAmount, []string{"amount", "debit", "transaction_amount"}},
	{FieldDescription, []string{"description", "memo", "payee", "merchant"}},
}

// requiredFields must be mapped before rows can be imported
var requiredFields = []string{FieldDate, FieldAmount}

// ColumnMapping maps canonical fields to the header that supplies them in one file
type ColumnMapping struct {
	Columns map[string]string `json:"columns"` // canonical field -> normalized header
	Headers []string          `json:"headers"` // normalized headers, in file order

	index map[string]int
}

// normalizeHeader lowercases and trims a header name
func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// newColumnMapping builds the mapping for a header row. When a header
// repeats, the first column with that name is used.
func newColumnMapping(header []string) ColumnMapping {
	m := ColumnMapping{
		Columns: make(map[string]string),
		Headers: make([]string, len(header)),
		index:   make(map[string]int, len(header)),
	}
	for i, h := range header {
		name := normalizeHeader(h)
		m.Headers[i] = name
		if _, seen := m.index[name]; !seen {
			m.index[name] = i
		}
	}

	for _, c := range columnAliases {
		for _, alias := range c.aliases {
			if _, ok := m.index[alias]; ok {
				m.Columns[c.field] = alias
				break
			}
		}
	}
	return m
}

// Mapped reports how many canonical fields found a column
func (m ColumnMapping) Mapped() int {
	return len(m.Columns)
}

// Has reports whether field is mapped
func (m ColumnMapping) Has(field string) bool {
	_, ok := m.Columns[field]
	return ok
}

// Importable returns an *UnmappedColumnError unless date and amount are both mapped
func (m ColumnMapping) Importable() error {
	var missing []string
	for _, f := range requiredFields {
		if !m.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &UnmappedColumnError{Missing: missing, Headers: m.Headers}
	}
	return nil
}

// value returns the cell for field in row. Short rows yield "".
func (m ColumnMapping) value(row []string, field string) (string, bool) {
	name, ok := m.Columns[field]
	if !ok {
		return "", false
	}
	i := m.index[name]
	if i >= len(row) {
		return "", true
	}
	return row[i], true
}
