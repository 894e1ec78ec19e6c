package core

import (
	"context"
	"sort"
	"strings"
)

// Builder turns a Table into records.
//
// For each kept data row and each column in output order the stages run in
// a fixed sequence:
//  1. coercion per the column rule; the typed value replaces the raw cell
//  2. required check; failures become diagnostics
//  3. Validator hook; false becomes a diagnostic, an error aborts the build
//  4. Formatter hook; its result is stored, [Deleted] drops the key
//
// A Builder holds no per-build state and may be shared between goroutines.
type Builder struct {
	reporter Reporter
	types    *TypeRegistry
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithReporter sets where diagnostics go. The default logs them with slog.
func WithReporter(r Reporter) BuilderOption {
	return func(b *Builder) {
		if r != nil {
			b.reporter = r
		}
	}
}

// WithTypes sets the registry of application-defined types.
// The default is [DefaultTypes].
func WithTypes(reg *TypeRegistry) BuilderOption {
	return func(b *Builder) {
		b.types = reg
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		reporter: SlogReporter{},
		types:    DefaultTypes(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces one record per data row kept by hooks.Filter, in grid order.
// Validation problems are reported, never returned. A hook error aborts the
// build and no records are returned.
//
// Each cell passes the stages in order:
//
//  1. coerce: the column rule converts the raw string
//  2. require: an empty cell in a required column is reported
//  3. validate: hooks.Validator may reject the value
//  4. format: hooks.Formatter replaces the value, or drops it with [Deleted]
func (b *Builder) Build(ctx context.Context, t *Table, hooks Hooks) ([]Record, error) {
	titles := t.Titles()
	rules := t.Rules()
	order := columnOrder(titles, t.Layout().Sort)
	report := b.reporterFor(ctx)

	b.reportUnknownTypes(ctx, report, t.Name(), titles, rules, hooks)

	rows := t.DataRows(hooks.Filter)
	records := make([]Record, 0, len(rows))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := NewRecord(len(order))
		for _, idx := range order {
			cell := Cell{
				Table:  t.Name(),
				Column: titles[idx],
				Index:  idx,
				Line:   row.Line,
				Rule:   rules[idx].Raw,
			}

			cell.Value = b.coerce(ctx, report, cell, rules[idx], row.Cells[idx])

			if hooks.Validator != nil {
				ok, err := hooks.Validator(ctx, cell)
				if err != nil {
					return nil, &HookError{Stage: "validator", Table: cell.Table, Column: cell.Column, Line: cell.Line, Err: err}
				}
				if !ok {
					report.Report(ctx, Diagnostic{
						Kind:     DiagRejected,
						Table:    cell.Table,
						Column:   cell.Column,
						Index:    idx,
						Line:     row.Line,
						Value:    cell.Value,
						Expected: cell.Rule,
					})
				}
			}

			out := cell.Value
			if hooks.Formatter != nil {
				v, err := hooks.Formatter(ctx, cell)
				if err != nil {
					return nil, &HookError{Stage: "formatter", Table: cell.Table, Column: cell.Column, Line: cell.Line, Err: err}
				}
				out = v
			}
			if IsDeleted(out) {
				continue
			}
			rec.Set(cell.Column, out)
		}
		records = append(records, rec)
	}

	return records, nil
}

// coerce applies the column rule to raw and reports failures.
// Failed values pass through as the raw string.
func (b *Builder) coerce(ctx context.Context, report Reporter, cell Cell, rule Rule, raw string) any {
	if rule.IsZero() {
		return raw
	}

	value, valid, known := Coerce(rule, raw)
	if !known {
		fn, ok := b.types.Lookup(rule.Type)
		if !ok {
			return raw
		}
		value, valid = fn(raw)
	}

	empty := strings.TrimSpace(raw) == ""
	switch {
	case valid && !(empty && rule.Required):
		return value
	case empty && !rule.Required:
		return value
	case empty:
		report.Report(ctx, Diagnostic{
			Kind:     DiagRequiredMissing,
			Table:    cell.Table,
			Column:   cell.Column,
			Index:    cell.Index,
			Line:     cell.Line,
			Expected: rule.Raw,
		})
		return value
	default:
		report.Report(ctx, Diagnostic{
			Kind:     DiagInvalidValue,
			Table:    cell.Table,
			Column:   cell.Column,
			Index:    cell.Index,
			Line:     cell.Line,
			Value:    raw,
			Expected: rule.Raw,
		})
		return raw
	}
}

// reportUnknownTypes emits one diagnostic per column whose type tag is
// neither built in nor registered. Columns are left to the Validator hook
// when one is set.
func (b *Builder) reportUnknownTypes(ctx context.Context, report Reporter, table string, titles []string, rules []Rule, hooks Hooks) {
	if hooks.Validator != nil {
		return
	}
	for i, rule := range rules {
		if rule.IsZero() || IsBuiltinType(rule.Type) {
			continue
		}
		if _, ok := b.types.Lookup(rule.Type); ok {
			continue
		}
		report.Report(ctx, Diagnostic{
			Kind:     DiagUnknownType,
			Table:    table,
			Column:   titles[i],
			Index:    i,
			Expected: rule.Raw,
		})
	}
}

func (b *Builder) reporterFor(ctx context.Context) Reporter {
	if extra := reporterFromContext(ctx); extra != nil {
		return MultiReporter{b.reporter, extra}
	}
	return b.reporter
}

// columnOrder returns column indexes in output order: grid order, or
// ascending by title with ties kept in grid order.
func columnOrder(titles []string, sorted bool) []int {
	order := make([]int, len(titles))
	for i := range order {
		order[i] = i
	}
	if sorted {
		sort.SliceStable(order, func(a, b int) bool {
			return titles[order[a]] < titles[order[b]]
		})
	}
	return order
}
