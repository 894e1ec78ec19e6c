// Package templates holds the HTML pages served next to the JSON API.
//
// Pages are written in .templ files; the matching _templ.go files are
// generated with `templ generate` and must not be edited by hand.
package templates

import (
	"fmt"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// TableView is the display form of one built table.
type TableView struct {
	Name        string
	Columns     []string   // Union of record keys in first-seen order
	Rows        [][]string // One cell per column, "" where a record lacks the key
	Diagnostics []string
}

// NewTableView flattens records for display. Keys can differ between
// records when a formatter drops values, so columns are the union of all
// keys.
func NewTableView(name string, records []core.Record, diags []core.Diagnostic) TableView {
	view := TableView{Name: name, Columns: recordColumns(records)}

	view.Rows = make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(view.Columns))
		for j, c := range view.Columns {
			if v, ok := rec.Get(c); ok && v != nil {
				row[j] = fmt.Sprint(v)
			}
		}
		view.Rows[i] = row
	}

	for _, d := range diags {
		view.Diagnostics = append(view.Diagnostics, d.String())
	}
	return view
}

func recordColumns(records []core.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}
