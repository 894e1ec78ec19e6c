package web

import (
	"context"
	"strings"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// omitEmptyFormatter drops keys whose value is nil or a blank string.
func omitEmptyFormatter(_ context.Context, c core.Cell) (any, error) {
	switch v := c.Value.(type) {
	case nil:
		return core.Deleted, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return core.Deleted, nil
		}
	}
	return c.Value, nil
}

// skipBlankRows keeps rows with at least one non-blank cell.
func skipBlankRows(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}
