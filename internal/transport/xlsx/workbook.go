// Package xlsx serves spreadsheet tables from a local Excel workbook.
//
// Each worksheet is a table. The workbook stands in for the remote API in
// development and in the CLI's --xlsx mode; cells are returned as the
// formatted strings excelize renders, like the Sheets API does.
package xlsx

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// Workbook implements core.Transport over an excelize file.
type Workbook struct {
	mu   sync.Mutex
	f    *excelize.File
	name string
}

// Open reads the workbook at path.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return New(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))), nil
}

// New wraps an already opened file. name becomes the metadata title.
func New(f *excelize.File, name string) *Workbook {
	return &Workbook{f: f, name: name}
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Metadata lists the worksheets and the extent of their used cells.
func (w *Workbook) Metadata(ctx context.Context, spreadsheetID string) (core.Metadata, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	md := core.Metadata{SpreadsheetID: spreadsheetID, Title: w.name}
	for i, sheet := range w.f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return core.Metadata{}, err
		}

		rows, err := w.f.GetRows(sheet)
		if err != nil {
			return core.Metadata{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		cols := 0
		for _, row := range rows {
			if len(row) > cols {
				cols = len(row)
			}
		}
		md.Tables = append(md.Tables, core.TableMetadata{
			Name:        sheet,
			Index:       i,
			RowCount:    len(rows),
			ColumnCount: cols,
		})
	}
	return md, nil
}

// Values returns the cells of rng. Trailing empty rows and cells are
// dropped, matching the Sheets API.
func (w *Workbook) Values(ctx context.Context, _ string, rng core.Range) (core.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.values(rng)
}

// BatchValues returns one grid per range, in order.
func (w *Workbook) BatchValues(ctx context.Context, _ string, ranges []core.Range) ([]core.Grid, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	grids := make([]core.Grid, len(ranges))
	for i, rng := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := w.values(rng)
		if err != nil {
			return nil, err
		}
		grids[i] = g
	}
	return grids, nil
}

func (w *Workbook) values(rng core.Range) (core.Grid, error) {
	startCol, startRow, err := excelize.CellNameToCoordinates(strings.ReplaceAll(rng.Start, "$", ""))
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", rng, err)
	}
	endCol, endRow := startCol, startRow
	if rng.End != "" {
		endCol, endRow, err = excelize.CellNameToCoordinates(strings.ReplaceAll(rng.End, "$", ""))
		if err != nil {
			return nil, fmt.Errorf("range %s: %w", rng, err)
		}
	}
	if endCol < startCol {
		startCol, endCol = endCol, startCol
	}
	if endRow < startRow {
		startRow, endRow = endRow, startRow
	}

	rows, err := w.f.GetRows(rng.Table)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", rng.Table, err)
	}

	var grid core.Grid
	for r := startRow; r <= endRow && r <= len(rows); r++ {
		row := rows[r-1]
		var cells []string
		if startCol <= len(row) {
			cells = row[startCol-1 : min(endCol, len(row))]
		}
		grid = append(grid, trimTrailing(cells))
	}

	for len(grid) > 0 && len(grid[len(grid)-1]) == 0 {
		grid = grid[:len(grid)-1]
	}
	return grid, nil
}

func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	out := make([]string, n)
	copy(out, cells[:n])
	return out
}
