package core

// convert.go normalizes raw spreadsheet cells into stored values.

import (
	"errors"
	"strings"
	"time"

	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

// DefaultCurrency applies when a security row has no currency.
const DefaultCurrency = "USD"

// maturityDateLayouts are tried in order; the first that parses wins, so
// "03/04/2024" is read as March 4th. Month and day accept one or two digits
// since spreadsheet exports drop the leading zero.
var maturityDateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"2006/1/2",
}

var (
	errInvalidDate     = errors.New("invalid date")
	errInvalidCurrency = errors.New("invalid currency")
)

// NormalizeDate parses s with the accepted layouts and returns it as
// YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range maturityDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), nil
		}
	}
	return "", errInvalidDate
}

// NormalizeCurrency upper-cases and trims s, which must then be exactly
// three characters.
func NormalizeCurrency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if runeLen(s) != 3 {
		return "", errInvalidCurrency
	}
	return s, nil
}

// CleanCell removes common spreadsheet artifacts from a header cell:
// surrounding whitespace, an Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// headerKey is the case-insensitive form used when comparing headers.
func headerKey(s string) string {
	return strings.ToLower(CleanCell(s))
}

// cell returns the trimmed value of the column mapped to field. ok is false
// when the field is unmapped or the column is absent from the row.
func cell(row tabular.Row, mapping map[string]string, field string) (value string, ok bool) {
	col := mapping[field]
	if col == "" {
		return "", false
	}
	v, ok := row[col]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func runeLen(s string) int {
	return len([]rune(s))
}
