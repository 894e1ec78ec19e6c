package core

import (
	"context"
	"strings"
)

// Grid is a fetched rectangle of raw cell values, row-major.
// Rows may be shorter than the widest row; missing trailing cells are empty.
type Grid [][]string

// Orientation selects how a grid is read.
type Orientation int

const (
	// RowMajor reads titles from a row and records from the rows below it.
	RowMajor Orientation = iota
	// ColumnMajor reads titles from a column and records from the columns to
	// its right. The grid is transposed before slicing.
	ColumnMajor
)

// Layout says where titles, rules and data live in a grid.
// Line numbers are 1-based. A Layout is a plain value: each build gets its own
// copy and nothing in this package mutates one.
type Layout struct {
	TitleLine      int         // Line holding column titles
	ValidationLine int         // Line holding rule strings; 0 disables rules
	FirstDataLine  int         // First line of data
	Orientation    Orientation // RowMajor or ColumnMajor
	Sort           bool        // Order record keys by title
}

// DefaultLayout returns titles on line 1, rules on line 2 and data from line 3.
func DefaultLayout() Layout {
	return Layout{
		TitleLine:      1,
		ValidationLine: 2,
		FirstDataLine:  3,
		Orientation:    RowMajor,
	}
}

// Validate reports whether the line numbers describe a usable layout.
func (l Layout) Validate() error {
	switch {
	case l.TitleLine <= 0:
		return &ConfigurationError{Field: "title_line", Value: l.TitleLine, Reason: "must be positive"}
	case l.ValidationLine < 0:
		return &ConfigurationError{Field: "validation_line", Value: l.ValidationLine, Reason: "must be positive, or 0 for none"}
	case l.FirstDataLine <= 0:
		return &ConfigurationError{Field: "first_line", Value: l.FirstDataLine, Reason: "must be positive"}
	case l.FirstDataLine <= l.TitleLine:
		return &ConfigurationError{Field: "first_line", Value: l.FirstDataLine, Reason: "must come after the title line"}
	}
	return nil
}

// Rule is a parsed per-column validation rule such as "int:required".
type Rule struct {
	Raw      string // Rule string exactly as found in the grid
	Type     string // Lowercased type tag
	Required bool   // True when the rule carries the required marker
}

// ParseRule parses "type[:required]". An empty string yields the zero Rule,
// which means no coercion for that column.
func ParseRule(s string) Rule {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{}
	}

	typ, marker, _ := strings.Cut(s, ":")
	return Rule{
		Raw:      raw,
		Type:     strings.ToLower(strings.TrimSpace(typ)),
		Required: strings.EqualFold(strings.TrimSpace(marker), "required"),
	}
}

// IsZero reports whether the column has no rule.
func (r Rule) IsZero() bool {
	return r.Type == ""
}

// Cell is what validator and formatter hooks see for one value.
type Cell struct {
	Table  string // Table name
	Column string // Column title
	Index  int    // 0-based column position in the grid
	Line   int    // 1-based line of the row in the grid
	Rule   string // Raw rule string, empty when the column has none
	Value  any    // Current value, after built-in coercion
}

// Filter decides whether a raw data row is kept. It runs before coercion.
type Filter func(row []string) bool

// Validator checks a cell. Returning false reports a diagnostic; returning an
// error aborts the build of the whole table.
type Validator func(ctx context.Context, c Cell) (bool, error)

// Formatter produces the record value for a cell. Returning [Deleted] omits
// the key; returning an error aborts the build of the whole table.
type Formatter func(ctx context.Context, c Cell) (any, error)

// Hooks are the optional per-table stages applied by the builder.
type Hooks struct {
	Filter    Filter
	Validator Validator
	Formatter Formatter
}

// merge returns h with every non-nil hook of o taking precedence.
func (h Hooks) merge(o Hooks) Hooks {
	if o.Filter != nil {
		h.Filter = o.Filter
	}
	if o.Validator != nil {
		h.Validator = o.Validator
	}
	if o.Formatter != nil {
		h.Formatter = o.Formatter
	}
	return h
}

type deletedMarker struct{}

// Deleted is returned by a formatter to drop the key from the record.
// Its type is unexported, so no other value can compare equal to it.
var Deleted any = deletedMarker{}

// IsDeleted reports whether v is the [Deleted] marker.
func IsDeleted(v any) bool {
	_, ok := v.(deletedMarker)
	return ok
}

// TableMetadata identifies one table of a spreadsheet and its dimensions.
type TableMetadata struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
}

// Metadata is the table list of a spreadsheet.
type Metadata struct {
	SpreadsheetID string          `json:"spreadsheetId"`
	Title         string          `json:"title,omitempty"`
	Tables        []TableMetadata `json:"tables"`
}

// Lookup finds a table by exact name.
func (m Metadata) Lookup(name string) (TableMetadata, bool) {
	for _, t := range m.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableMetadata{}, false
}

// Names returns the table names in spreadsheet order.
func (m Metadata) Names() []string {
	names := make([]string, len(m.Tables))
	for i, t := range m.Tables {
		names[i] = t.Name
	}
	return names
}

// Transport is the remote spreadsheet API. Implementations live in
// internal/transport.
type Transport interface {
	// Metadata returns the table list and dimensions of a spreadsheet.
	Metadata(ctx context.Context, spreadsheetID string) (Metadata, error)

	// Values returns the grid for one range.
	Values(ctx context.Context, spreadsheetID string, rng Range) (Grid, error)

	// BatchValues returns one grid per range, in the order of ranges.
	BatchValues(ctx context.Context, spreadsheetID string, ranges []Range) ([]Grid, error)
}
