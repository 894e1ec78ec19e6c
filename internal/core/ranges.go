package core

import (
	"context"
	"strconv"
	"strings"
)

// DefaultStart is the top-left cell used when no start is given.
const DefaultStart = "A1"

// Range addresses a rectangle of one table, e.g. Sheet1!A1:D20.
type Range struct {
	Table string
	Start string
	End   string // Empty for a single cell
}

// String formats the range in A1 notation. Table names containing anything
// other than letters, digits and underscores are single-quoted, with
// embedded quotes doubled.
func (r Range) String() string {
	var b strings.Builder
	b.WriteString(quoteTable(r.Table))
	b.WriteByte('!')
	b.WriteString(r.Start)
	if r.End != "" {
		b.WriteByte(':')
		b.WriteString(r.End)
	}
	return b.String()
}

func quoteTable(name string) string {
	plain := name != ""
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// RangeResolver computes the range to fetch for a table.
type RangeResolver struct {
	cache *MetadataCache
}

// NewRangeResolver returns a resolver reading dimensions from cache.
func NewRangeResolver(cache *MetadataCache) *RangeResolver {
	return &RangeResolver{cache: cache}
}

// Resolve returns start:end for table. An explicit end is used verbatim
// without touching metadata. Otherwise the end cell is the table's last row
// and column, and a table missing from metadata yields a [NotFoundError].
func (r *RangeResolver) Resolve(ctx context.Context, table, start, end string) (Range, error) {
	if start == "" {
		start = DefaultStart
	}
	if end != "" {
		return Range{Table: table, Start: start, End: end}, nil
	}

	md, err := r.cache.Get(ctx, false)
	if err != nil {
		return Range{}, err
	}
	tm, ok := md.Lookup(table)
	if !ok {
		return Range{}, &NotFoundError{SpreadsheetID: md.SpreadsheetID, Table: table}
	}
	return Range{Table: table, Start: start, End: EndCell(tm, start)}, nil
}

// ResolveAll resolves the full extent of every named table from a single
// metadata snapshot. Every name is checked before any range is built.
func (r *RangeResolver) ResolveAll(ctx context.Context, names []string, start string) ([]Range, error) {
	if start == "" {
		start = DefaultStart
	}

	md, err := r.cache.Get(ctx, false)
	if err != nil {
		return nil, err
	}

	tables := make([]TableMetadata, len(names))
	for i, name := range names {
		tm, ok := md.Lookup(name)
		if !ok {
			return nil, &NotFoundError{SpreadsheetID: md.SpreadsheetID, Table: name}
		}
		tables[i] = tm
	}

	ranges := make([]Range, len(tables))
	for i, tm := range tables {
		ranges[i] = Range{Table: tm.Name, Start: start, End: EndCell(tm, start)}
	}
	return ranges, nil
}

// EndCell returns the bottom-right cell of a table. A table with no rows or
// columns ends where it starts.
func EndCell(tm TableMetadata, start string) string {
	if tm.RowCount <= 0 || tm.ColumnCount <= 0 {
		return start
	}
	return ColumnLetters(tm.ColumnCount) + strconv.Itoa(tm.RowCount)
}
