package google

import (
	"fmt"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

// header is the first row of every yearly expenses sheet.
var header = []any{"ID", "User", "Date", "Category", "Amount", "Note", "Source", "Recurring"}

// expenseRow lays an expense out in the column order of header.
func expenseRow(e core.Expense) []any {
	amount, _ := e.Amount.Round(2).Float64()
	return []any{
		e.ID,
		e.UserID,
		e.Date.String(),
		asText(string(e.Category)),
		amount,
		asText(e.Note),
		asText(e.Source),
		asText(e.RecurringID),
	}
}

// asText keeps user-entered input from being evaluated as a formula. Sheets
// stores a leading apostrophe as a text marker and does not display it.
func asText(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

// findRow returns the 1-based sheet row whose first column holds id, or 0.
func findRow(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 1
		}
	}
	return 0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
