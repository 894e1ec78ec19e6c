package core

// diagnostics.go reports non-fatal validation findings.
//
// A build never fails because of a bad cell. Each finding becomes a
// Diagnostic delivered to a Reporter:
//  1. SlogReporter logs it (Warn for unknown types and rejections, Error for
//     type failures), matching how operators watch the service
//  2. Collector keeps it in memory, e.g. to return with an HTTP response
//  3. MultiReporter fans out to several reporters

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/sheetjson/internal/logging"
)

// DiagnosticKind classifies a validation finding.
type DiagnosticKind string

const (
	DiagUnknownType     DiagnosticKind = "unknown_type"
	DiagInvalidValue    DiagnosticKind = "invalid_value"
	DiagRequiredMissing DiagnosticKind = "required_missing"
	DiagRejected        DiagnosticKind = "rejected"
)

// Diagnostic is one validation finding for a cell or column.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Table    string         `json:"table"`
	Column   string         `json:"column"`
	Index    int            `json:"index"`          // 0-based column position
	Line     int            `json:"line,omitempty"` // 1-based grid line, 0 for column-level findings
	Value    any            `json:"value,omitempty"`
	Expected string         `json:"expected,omitempty"` // Rule string the value was checked against
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagUnknownType:
		return fmt.Sprintf("unknown type %q: table %s, column %q", d.Expected, d.Table, d.Column)
	case DiagRequiredMissing:
		return fmt.Sprintf("required field is empty: table %s, column %q, line %d", d.Table, d.Column, d.Line)
	case DiagRejected:
		return fmt.Sprintf("custom validation failed: table %s, column %q, line %d, value %v", d.Table, d.Column, d.Line, d.Value)
	default:
		return fmt.Sprintf("invalid value %v should be %s: table %s, column %q, line %d", d.Value, d.Expected, d.Table, d.Column, d.Line)
	}
}

// Reporter receives diagnostics. Implementations must be safe for
// concurrent use; batch builds report from several goroutines.
type Reporter interface {
	Report(ctx context.Context, d Diagnostic)
}

// ReporterFunc adapts a function to [Reporter].
type ReporterFunc func(ctx context.Context, d Diagnostic)

func (f ReporterFunc) Report(ctx context.Context, d Diagnostic) { f(ctx, d) }

// SlogReporter logs diagnostics through the request-scoped slog logger.
type SlogReporter struct{}

func (SlogReporter) Report(ctx context.Context, d Diagnostic) {
	level := slog.LevelWarn
	if d.Kind == DiagInvalidValue || d.Kind == DiagRequiredMissing {
		level = slog.LevelError
	}

	logging.FromContext(ctx).Log(ctx, level, "validation failed",
		"kind", string(d.Kind),
		"table", d.Table,
		"column", d.Column,
		"index", d.Index,
		"line", d.Line,
		"value", d.Value,
		"expected", d.Expected,
	)
}

// Collector keeps every diagnostic it receives.
type Collector struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (c *Collector) Report(_ context.Context, d Diagnostic) {
	c.mu.Lock()
	c.diags = append(c.diags, d)
	c.mu.Unlock()
}

// Diagnostics returns a copy of everything collected so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// ForTable returns the diagnostics collected for one table.
func (c *Collector) ForTable(table string) []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Diagnostic
	for _, d := range c.diags {
		if d.Table == table {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diags)
}

// MultiReporter sends each diagnostic to every non-nil reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, d Diagnostic) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, d)
		}
	}
}

type reporterKey struct{}

// ContextWithReporter attaches an extra reporter to ctx. Builders send
// diagnostics to it in addition to their own reporter, which lets a single
// request collect its findings without a dedicated builder.
func ContextWithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// reporterFromContext returns the reporter attached with ContextWithReporter.
func reporterFromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok {
		return r
	}
	return nil
}
