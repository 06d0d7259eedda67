package google

import (
	"fmt"
	"strings"

	"omnifin/internal/core"
)

// TransactionRow renders t as a sheet row matching Header.
func TransactionRow(company core.Company, t core.Transaction) []any {
	return []any{
		t.Date.String(),
		string(t.Type),
		TextCell(t.Category),
		TextCell(t.Description),
		t.Amount.StringFixed(2),
		string(t.Status),
		TextCell(company.Name),
		t.ID.String(),
	}
}

// TextCell keeps free text from being evaluated as a formula. Rows are
// written USER_ENTERED, where a leading apostrophe marks the cell as plain
// text and is not displayed.
func TextCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// FindRow returns the 1-based row whose first cell equals id, or 0.
func FindRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}
