package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ColumnLetters converts a 1-based column number to its spreadsheet label:
// 1 is A, 26 is Z, 27 is AA. Returns "" for n < 1.
//
// Unlike excelize.ColumnNumberToName it is not capped at XFD: Google Sheets
// grids reach ZZZ (18278).
func ColumnLetters(n int) string {
	if n < 1 {
		return ""
	}

	var buf [16]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ColumnNumber converts a column label such as "AB" back to its 1-based
// number. Letters are case-insensitive. Labels beyond XFD, the last column
// of a workbook, are rejected.
func ColumnNumber(letters string) (int, error) {
	n, err := excelize.ColumnNameToNumber(letters)
	if err != nil {
		return 0, fmt.Errorf("invalid column label %q: %w", letters, err)
	}
	return n, nil
}

// CellRef is a parsed A1-style cell reference.
type CellRef struct {
	Column int // 1-based
	Row    int // 1-based
}

func (c CellRef) String() string {
	return ColumnLetters(c.Column) + strconv.Itoa(c.Row)
}

// ParseCell parses an A1-style reference such as "B12".
// An optional "$" before the column or row is ignored.
//
// Example:
//
//	ref, _ := core.ParseCell("$AB$12") // CellRef{Column: 28, Row: 12}
//	ref.String()                       // "AB12"
//
// Rows are not capped at the workbook row limit; Google Sheets grids can
// be taller.
func ParseCell(ref string) (CellRef, error) {
	col, row, err := excelize.SplitCellName(strings.TrimSpace(ref))
	if err != nil {
		return CellRef{}, fmt.Errorf("invalid cell reference %q: %w", ref, err)
	}
	n, err := ColumnNumber(col)
	if err != nil {
		return CellRef{}, fmt.Errorf("invalid cell reference %q: %w", ref, err)
	}
	return CellRef{Column: n, Row: row}, nil
}
