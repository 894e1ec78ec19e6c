package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gatedFetch blocks every fetch until release is closed.
type gatedFetch struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	md      Metadata
	err     error
}

func newGatedFetch(md Metadata, err error) *gatedFetch {
	return &gatedFetch{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		md:      md,
		err:     err,
	}
}

func (g *gatedFetch) fetch(ctx context.Context) (Metadata, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	<-g.release
	return g.md, g.err
}

// waitForWaiters spins until n callers are queued behind the in-flight fetch.
func waitForWaiters(t *testing.T, c *MetadataCache, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.waiters)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d waiters", n)
}

func TestMetadataCache_SingleFlight(t *testing.T) {
	want := Metadata{SpreadsheetID: "s", Tables: []TableMetadata{{Name: "A", RowCount: 1, ColumnCount: 1}}}
	g := newGatedFetch(want, nil)
	cache := NewMetadataCache(g.fetch)

	const callers = 5
	results := make([]Metadata, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = cache.Get(context.Background(), false)
	}()
	<-g.started

	if got := cache.State(); got != CacheFetching {
		t.Errorf("State() during fetch = %s, want fetching", got)
	}

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), i%2 == 0)
		}()
	}
	waitForWaiters(t, cache, callers-1)
	close(g.release)
	wg.Wait()

	if got := g.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("caller %d err = %v", i, errs[i])
		}
		if results[i].Tables[0].Name != "A" {
			t.Errorf("caller %d got %+v", i, results[i])
		}
	}
	if got := cache.State(); got != CacheReady {
		t.Errorf("State() = %s, want ready", got)
	}

	// Cached: no further fetch.
	if _, err := cache.Get(context.Background(), false); err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("fetch calls after cached Get = %d, want 1", got)
	}
}

func TestMetadataCache_FailureSharedAndReset(t *testing.T) {
	boom := errors.New("network down")
	g := newGatedFetch(Metadata{}, boom)
	cache := NewMetadataCache(g.fetch)

	errs := make(chan error, 3)
	go func() {
		_, err := cache.Get(context.Background(), false)
		errs <- err
	}()
	<-g.started
	for i := 0; i < 2; i++ {
		go func() {
			_, err := cache.Get(context.Background(), false)
			errs <- err
		}()
	}
	waitForWaiters(t, cache, 2)
	close(g.release)

	for i := 0; i < 3; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Errorf("caller err = %v, want %v", err, boom)
		}
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	if got := cache.State(); got != CacheEmpty {
		t.Errorf("State() after failure = %s, want empty", got)
	}

	// A later caller retries.
	g.err = nil
	g.md = Metadata{SpreadsheetID: "s"}
	if _, err := cache.Get(context.Background(), false); err != nil {
		t.Fatalf("retry Get: %v", err)
	}
	if got := g.calls.Load(); got != 2 {
		t.Errorf("fetch calls after retry = %d, want 2", got)
	}
}

func TestMetadataCache_ForceRefresh(t *testing.T) {
	var calls atomic.Int32
	cache := NewMetadataCache(func(context.Context) (Metadata, error) {
		n := calls.Add(1)
		return Metadata{Title: string(rune('a' + n - 1))}, nil
	})
	ctx := context.Background()

	first, _ := cache.Get(ctx, false)
	cached, _ := cache.Get(ctx, false)
	refreshed, _ := cache.Get(ctx, true)

	if first.Title != "a" || cached.Title != "a" {
		t.Errorf("titles = %q, %q, want a, a", first.Title, cached.Title)
	}
	if refreshed.Title != "b" {
		t.Errorf("refreshed title = %q, want b", refreshed.Title)
	}
	if got, ok := cache.Cached(); !ok || got.Title != "b" {
		t.Errorf("Cached() = (%q, %v), want (b, true)", got.Title, ok)
	}
}

func TestMetadataCache_WaiterCancellation(t *testing.T) {
	g := newGatedFetch(Metadata{SpreadsheetID: "s"}, nil)
	cache := NewMetadataCache(g.fetch)

	leader := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), false)
		leader <- err
	}()
	<-g.started

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, false)
		waiter <- err
	}()
	waitForWaiters(t, cache, 1)
	cancel()

	if err := <-waiter; !errors.Is(err, context.Canceled) {
		t.Errorf("waiter err = %v, want context.Canceled", err)
	}

	close(g.release)
	if err := <-leader; err != nil {
		t.Errorf("leader err = %v, want nil", err)
	}
	if got := cache.State(); got != CacheReady {
		t.Errorf("State() = %s, want ready", got)
	}
}

func TestMetadataCache_WaitersReleasedInArrivalOrder(t *testing.T) {
	g := newGatedFetch(Metadata{SpreadsheetID: "s"}, nil)
	cache := NewMetadataCache(g.fetch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = cache.Get(context.Background(), false)
	}()
	<-g.started

	const waiters = 4
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background(), false)
		}()
		waitForWaiters(t, cache, i+1)
	}

	// Waiter i is at position i; record the order releases happen in.
	var order []int
	cache.mu.Lock()
	for i, release := range cache.waiters {
		cache.waiters[i] = func(r metadataResult) {
			order = append(order, i)
			release(r)
		}
	}
	cache.mu.Unlock()

	close(g.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("waiter %d err = %v", i, err)
		}
	}
	want := []int{0, 1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("release order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("release order = %v, want %v", order, want)
		}
	}
}

func TestMetadataCache_PanicSettles(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	cache := NewMetadataCache(func(context.Context) (Metadata, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			panic("malformed sheet properties")
		}
		return Metadata{SpreadsheetID: "s"}, nil
	})

	leader := make(chan any, 1)
	go func() {
		defer func() { leader <- recover() }()
		_, _ = cache.Get(context.Background(), false)
	}()
	<-started

	waiter := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), false)
		waiter <- err
	}()
	waitForWaiters(t, cache, 1)
	close(release)

	if r := <-leader; r != "malformed sheet properties" {
		t.Errorf("leader recovered %v, want the original panic", r)
	}
	select {
	case err := <-waiter:
		if !errors.Is(err, ErrMetadataFetchPanicked) {
			t.Errorf("waiter err = %v, want ErrMetadataFetchPanicked", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released after the fetch panicked")
	}
	if got := cache.State(); got != CacheEmpty {
		t.Errorf("State() after panic = %s, want empty", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	md, err := cache.Get(ctx, false)
	if err != nil || md.SpreadsheetID != "s" {
		t.Fatalf("Get after panic = (%+v, %v), want a fresh fetch", md, err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestMetadataCache_ReturnedValueIsACopy(t *testing.T) {
	source := Metadata{SpreadsheetID: "s", Tables: []TableMetadata{{Name: "A"}, {Name: "B"}}}
	cache := NewMetadataCache(func(context.Context) (Metadata, error) {
		return source, nil
	})
	ctx := context.Background()

	md, err := cache.Get(ctx, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	md.Tables[0].Name = "mutated"
	source.Tables[1].Name = "mutated"

	cached, ok := cache.Cached()
	if !ok {
		t.Fatal("Cached() not ready")
	}
	cached.Tables[1].Name = "mutated"

	again, err := cache.Get(ctx, false)
	if err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if got := again.Names(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("cached names = %v, want [A B]", got)
	}
}

func TestMetadataCache_Invalidate(t *testing.T) {
	var calls atomic.Int32
	cache := NewMetadataCache(func(context.Context) (Metadata, error) {
		calls.Add(1)
		return Metadata{}, nil
	})

	_, _ = cache.Get(context.Background(), false)
	cache.Invalidate()
	if got := cache.State(); got != CacheEmpty {
		t.Errorf("State() after Invalidate = %s, want empty", got)
	}
	_, _ = cache.Get(context.Background(), false)
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestNewTransportCache_WrapsErrors(t *testing.T) {
	ft := newFakeTransport()
	ft.err = errors.New("403 forbidden")
	cache := NewTransportCache(ft, "sheet-1")

	_, err := cache.Get(context.Background(), false)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "metadata" {
		t.Fatalf("err = %v, want metadata TransportError", err)
	}
	if !errors.Is(err, ft.err) {
		t.Error("TransportError should unwrap to the transport error")
	}
}

func TestCacheState_String(t *testing.T) {
	for state, want := range map[CacheState]string{
		CacheEmpty:     "empty",
		CacheFetching:  "fetching",
		CacheReady:     "ready",
		CacheState(42): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("CacheState(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
