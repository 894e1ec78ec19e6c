package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultBuildConcurrency bounds concurrent table builds in FetchMany.
const DefaultBuildConcurrency = 4

// Retriever fetches named tables of one spreadsheet and builds records.
// It is safe for concurrent use; the metadata cache is its only shared state.
type Retriever struct {
	transport     Transport
	spreadsheetID string
	cache         *MetadataCache
	resolver      *RangeResolver
	builder       *Builder
	limiter       *FetchLimiter
	layout        Layout
	concurrency   int
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithBuilder sets the record builder.
func WithBuilder(b *Builder) RetrieverOption {
	return func(r *Retriever) { r.builder = b }
}

// WithLimiter bounds concurrent transport calls. Without one, calls are
// not limited.
func WithLimiter(l *FetchLimiter) RetrieverOption {
	return func(r *Retriever) { r.limiter = l }
}

// WithLayout sets the layout used when a fetch does not name one.
func WithLayout(l Layout) RetrieverOption {
	return func(r *Retriever) { r.layout = l }
}

// WithBuildConcurrency bounds how many tables FetchMany builds at once.
func WithBuildConcurrency(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRetriever returns a retriever for spreadsheetID reading through t.
func NewRetriever(t Transport, spreadsheetID string, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		transport:     t,
		spreadsheetID: spreadsheetID,
		cache:         NewTransportCache(t, spreadsheetID),
		layout:        DefaultLayout(),
		concurrency:   DefaultBuildConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.builder == nil {
		r.builder = NewBuilder()
	}
	r.resolver = NewRangeResolver(r.cache)
	return r
}

// SpreadsheetID returns the spreadsheet this retriever reads.
func (r *Retriever) SpreadsheetID() string { return r.spreadsheetID }

// Cache returns the metadata cache.
func (r *Retriever) Cache() *MetadataCache { return r.cache }

// Layout returns the layout used when a fetch does not name one.
func (r *Retriever) Layout() Layout { return r.layout }

// Limiter returns the fetch limiter, or nil.
func (r *Retriever) Limiter() *FetchLimiter { return r.limiter }

// Metadata returns the spreadsheet metadata. refresh bypasses the cached
// value.
func (r *Retriever) Metadata(ctx context.Context, refresh bool) (Metadata, error) {
	return r.cache.Get(ctx, refresh)
}

// FetchOptions configures FetchOne.
type FetchOptions struct {
	Hooks
	Layout *Layout // nil uses the retriever's layout
	Start  string  // Top-left cell, default A1
	End    string  // Bottom-right cell; empty derives it from metadata
	Raw    bool    // Skip record building and return only the table
}

// Result is the outcome for one table.
type Result struct {
	Name    string
	Table   *Table
	Records []Record
	Err     error // Set only in batch results
}

// FetchOne fetches and builds a single table.
//
// The range comes from opts.Start and opts.End; without an End the table's
// dimensions are read from the cached metadata. Validation problems go to
// the builder's reporter and never fail the call.
//
// Usage:
//
//	res, err := r.FetchOne(ctx, "Items", core.FetchOptions{
//	    Hooks: core.Hooks{Filter: skipBlank},
//	})
//	if err != nil {
//	    return core.NewUserError(err)
//	}
//	for _, rec := range res.Records {
//	    ...
//	}
func (r *Retriever) FetchOne(ctx context.Context, name string, opts FetchOptions) (Result, error) {
	layout := r.layoutFor(opts.Layout, nil)
	if err := layout.Validate(); err != nil {
		return Result{}, withTable(err, name)
	}

	rng, err := r.resolver.Resolve(ctx, name, opts.Start, opts.End)
	if err != nil {
		return Result{}, err
	}

	var grid Grid
	err = r.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		grid, err = r.transport.Values(ctx, r.spreadsheetID, rng)
		if err != nil {
			return &TransportError{Op: "values", Err: err}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := r.build(ctx, name, grid, layout, opts.Hooks, opts.Raw)
	if res.Err != nil {
		return Result{}, res.Err
	}
	return res, nil
}

// Override replaces the batch-wide options for the table at the same
// position in the names list. Set hooks win over the shared ones.
type Override struct {
	Hooks
	Layout *Layout
}

// BatchOptions configures FetchMany.
type BatchOptions struct {
	Hooks                // Applied to every table
	Layout    *Layout    // nil uses the retriever's layout
	Start     string     // Top-left cell for every table, default A1
	Overrides []Override // Indexed by position in names
	Raw       bool
}

// BatchResult holds per-table results in request order.
type BatchResult struct {
	Results []Result
}

// Get returns the result for the first table called name.
func (b *BatchResult) Get(name string) (Result, bool) {
	for _, res := range b.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

// Names returns the table names in request order.
func (b *BatchResult) Names() []string {
	names := make([]string, len(b.Results))
	for i, res := range b.Results {
		names[i] = res.Name
	}
	return names
}

// Failed returns the results that carry an error.
func (b *BatchResult) Failed() []Result {
	var failed []Result
	for _, res := range b.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// FetchMany fetches several tables with one batched transport call.
//
// A nil names list means every table in the metadata. Every name is checked
// against metadata before anything is fetched: one unknown name fails the
// whole call with a [NotFoundError]. Tables are then built concurrently,
// each with its own hooks and layout; a failure in one build is recorded in
// its Result and does not affect the others.
func (r *Retriever) FetchMany(ctx context.Context, names []string, opts BatchOptions) (*BatchResult, error) {
	if names == nil {
		md, err := r.cache.Get(ctx, false)
		if err != nil {
			return nil, err
		}
		names = md.Names()
	}

	ranges, err := r.resolver.ResolveAll(ctx, names, opts.Start)
	if err != nil {
		return nil, err
	}

	out := &BatchResult{Results: make([]Result, len(names))}
	if len(ranges) == 0 {
		return out, nil
	}

	var grids []Grid
	err = r.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		grids, err = r.transport.BatchValues(ctx, r.spreadsheetID, ranges)
		if err != nil {
			return &TransportError{Op: "batch_values", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(grids) != len(ranges) {
		return nil, &TransportError{
			Op:  "batch_values",
			Err: fmt.Errorf("got %d grids for %d ranges", len(grids), len(ranges)),
		}
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, name := range names {
		var ov *Override
		if i < len(opts.Overrides) {
			ov = &opts.Overrides[i]
		}

		hooks := opts.Hooks
		if ov != nil {
			hooks = hooks.merge(ov.Hooks)
		}
		layout := r.layoutFor(opts.Layout, ov)

		g.Go(func() error {
			if err := layout.Validate(); err != nil {
				out.Results[i] = Result{Name: name, Err: withTable(err, name)}
				return nil
			}
			out.Results[i] = r.build(ctx, name, grids[i], layout, hooks, opts.Raw)
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

func (r *Retriever) build(ctx context.Context, name string, grid Grid, layout Layout, hooks Hooks, raw bool) Result {
	table, err := NewTable(name, grid, layout)
	if err != nil {
		return Result{Name: name, Err: err}
	}
	if raw {
		return Result{Name: name, Table: table}
	}

	records, err := r.builder.Build(ctx, table, hooks)
	if err != nil {
		return Result{Name: name, Table: table, Err: err}
	}
	return Result{Name: name, Table: table, Records: records}
}

func (r *Retriever) layoutFor(batch *Layout, ov *Override) Layout {
	switch {
	case ov != nil && ov.Layout != nil:
		return *ov.Layout
	case batch != nil:
		return *batch
	default:
		return r.layout
	}
}

func withTable(err error, table string) error {
	if ce, ok := err.(*ConfigurationError); ok {
		ce.Table = table
	}
	return err
}
