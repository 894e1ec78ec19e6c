package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeTransport serves grids from memory and counts calls.
type fakeTransport struct {
	md    Metadata
	grids map[string]Grid
	err   error

	metadataCalls atomic.Int32
	valuesCalls   atomic.Int32
	batchCalls    atomic.Int32

	mu     sync.Mutex
	ranges []Range
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		md: Metadata{
			SpreadsheetID: "sheet-1",
			Tables: []TableMetadata{
				{Name: "Items", Index: 0, RowCount: 4, ColumnCount: 4},
				{Name: "Owners", Index: 1, RowCount: 3, ColumnCount: 2},
			},
		},
		grids: map[string]Grid{
			"Items": dummyGrid(),
			"Owners": {
				{"owner", "active"},
				{"string:required", "boolean"},
				{"ann", "TRUE"},
			},
		},
	}
}

func (f *fakeTransport) Metadata(ctx context.Context, _ string) (Metadata, error) {
	f.metadataCalls.Add(1)
	if f.err != nil {
		return Metadata{}, f.err
	}
	return f.md, nil
}

func (f *fakeTransport) Values(ctx context.Context, _ string, rng Range) (Grid, error) {
	f.valuesCalls.Add(1)
	f.record(rng)
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.grids[rng.Table]
	if !ok {
		return nil, fmt.Errorf("no grid for %s", rng.Table)
	}
	return g, nil
}

func (f *fakeTransport) BatchValues(ctx context.Context, _ string, ranges []Range) ([]Grid, error) {
	f.batchCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Grid, len(ranges))
	for i, rng := range ranges {
		f.record(rng)
		out[i] = f.grids[rng.Table]
	}
	return out, nil
}

func (f *fakeTransport) record(rng Range) {
	f.mu.Lock()
	f.ranges = append(f.ranges, rng)
	f.mu.Unlock()
}

func (f *fakeTransport) networkCalls() int32 {
	return f.metadataCalls.Load() + f.valuesCalls.Load() + f.batchCalls.Load()
}
