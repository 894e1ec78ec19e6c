package core

import "sync"

// Row is one data row of a table, padded to the title width.
type Row struct {
	Line  int      // 1-based line in the (oriented) grid
	Cells []string // Raw cells, one per title
}

// Table is one fetched grid sliced per a Layout. The slice is computed on
// first access and reused afterwards. A Table is safe for concurrent reads.
type Table struct {
	name   string
	grid   Grid
	layout Layout

	once   sync.Once
	titles []string
	rules  []Rule
	rows   []Row
}

// NewTable validates layout and returns the table for grid.
// The grid is owned by the table afterwards and must not be modified.
func NewTable(name string, grid Grid, layout Layout) (*Table, error) {
	if err := layout.Validate(); err != nil {
		return nil, withTable(err, name)
	}
	return &Table{name: name, grid: grid, layout: layout}, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Layout returns the layout the table was sliced with.
func (t *Table) Layout() Layout { return t.layout }

// Grid returns the raw grid as fetched, before any transposition.
func (t *Table) Grid() Grid { return t.grid }

// Titles returns the title line. Empty titles are kept.
func (t *Table) Titles() []string {
	t.once.Do(t.slice)
	return t.titles
}

// Rules returns one rule per title. All rules are zero when the layout has
// no validation line or the line is outside the grid.
func (t *Table) Rules() []Rule {
	t.once.Do(t.slice)
	return t.rules
}

// DataRows returns the data rows in grid order, skipping those rejected by
// filter. A nil filter keeps every row.
func (t *Table) DataRows(filter Filter) []Row {
	t.once.Do(t.slice)
	if filter == nil {
		return t.rows
	}

	kept := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if filter(r.Cells) {
			kept = append(kept, r)
		}
	}
	return kept
}

func (t *Table) slice() {
	grid := t.grid
	if t.layout.Orientation == ColumnMajor {
		grid = transpose(grid)
	}

	t.titles = lineAt(grid, t.layout.TitleLine, -1)
	width := len(t.titles)

	t.rules = make([]Rule, width)
	if t.layout.ValidationLine > 0 {
		for i, s := range lineAt(grid, t.layout.ValidationLine, width) {
			t.rules[i] = ParseRule(s)
		}
	}

	for line := t.layout.FirstDataLine; line <= len(grid); line++ {
		t.rows = append(t.rows, Row{
			Line:  line,
			Cells: lineAt(grid, line, width),
		})
	}
}

// lineAt returns a copy of the 1-based line, padded or cut to width.
// A negative width keeps the line's own length. Lines past the end of the
// grid come back as empty cells.
func lineAt(grid Grid, line, width int) []string {
	var src []string
	if line >= 1 && line <= len(grid) {
		src = grid[line-1]
	}
	if width < 0 {
		width = len(src)
	}

	out := make([]string, width)
	copy(out, src)
	return out
}

// transpose swaps rows and columns. Ragged rows are padded with empty cells.
func transpose(g Grid) Grid {
	width := 0
	for _, row := range g {
		if len(row) > width {
			width = len(row)
		}
	}

	out := make(Grid, width)
	for c := range out {
		out[c] = make([]string, len(g))
		for r, row := range g {
			if c < len(row) {
				out[c][r] = row[c]
			}
		}
	}
	return out
}
