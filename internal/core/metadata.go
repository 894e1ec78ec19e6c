package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrMetadataFetchPanicked is returned to callers waiting on a metadata
// fetch that panicked.
var ErrMetadataFetchPanicked = errors.New("metadata fetch panicked")

// CacheState is the lifecycle state of a MetadataCache.
type CacheState int

const (
	CacheEmpty CacheState = iota
	CacheFetching
	CacheReady
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheFetching:
		return "fetching"
	case CacheReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MetadataFetchFunc loads metadata from the remote source.
type MetadataFetchFunc func(ctx context.Context) (Metadata, error)

type metadataResult struct {
	md  Metadata
	err error
}

// MetadataCache holds the metadata of one spreadsheet and makes sure at most
// one fetch for it is in flight.
//
// Callers arriving while a fetch is running wait for it and get the same
// outcome, released in arrival order. A successful fetch is kept until a
// forced refresh or Invalidate; a failed one leaves the cache empty so the
// next caller retries.
type MetadataCache struct {
	fetch MetadataFetchFunc

	mu      sync.Mutex
	state   CacheState
	value   Metadata
	waiters []func(metadataResult) // FIFO
}

// NewMetadataCache returns an empty cache backed by fetch.
func NewMetadataCache(fetch MetadataFetchFunc) *MetadataCache {
	return &MetadataCache{fetch: fetch}
}

// NewTransportCache returns a cache loading metadata for spreadsheetID from t.
// Transport failures are wrapped in a [TransportError].
func NewTransportCache(t Transport, spreadsheetID string) *MetadataCache {
	return NewMetadataCache(func(ctx context.Context) (Metadata, error) {
		md, err := t.Metadata(ctx, spreadsheetID)
		if err != nil {
			return Metadata{}, &TransportError{Op: "metadata", Err: err}
		}
		if md.SpreadsheetID == "" {
			md.SpreadsheetID = spreadsheetID
		}
		return md, nil
	})
}

// Get returns the metadata, fetching it if needed. With force set a cached
// value is ignored, but a fetch already in flight is still joined.
//
// State transitions:
//
//	empty    --Get-->            fetching (this caller fetches)
//	fetching --Get-->            fetching (caller queues as a waiter)
//	fetching --fetch ok-->       ready    (waiters released in order)
//	fetching --fetch failed-->   empty    (waiters get the same error)
//	ready    --Get(force)-->     fetching
//
// The returned value is a copy; changing it does not affect the cache.
//
// A waiting caller whose ctx ends returns ctx.Err(); the fetch itself keeps
// running for the others. The fetch runs with the ctx of the caller that
// started it, so its cancellation fails the fetch for everyone waiting.
func (c *MetadataCache) Get(ctx context.Context, force bool) (Metadata, error) {
	c.mu.Lock()

	switch {
	case c.state == CacheReady && !force:
		md := c.value.clone()
		c.mu.Unlock()
		return md, nil

	case c.state == CacheFetching:
		ch := make(chan metadataResult, 1)
		c.waiters = append(c.waiters, func(r metadataResult) { ch <- r })
		c.mu.Unlock()

		select {
		case r := <-ch:
			return r.md, r.err
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}

	c.state = CacheFetching
	c.mu.Unlock()

	return c.lead(ctx)
}

// lead runs the fetch for the caller that started it and releases every
// waiter with its outcome. A panicking fetch still settles the cache to
// empty and fails the waiters before the panic continues.
func (c *MetadataCache) lead(ctx context.Context) (md Metadata, err error) {
	settled := false
	defer func() {
		if settled {
			return
		}
		r := recover()
		c.settle(Metadata{}, fmt.Errorf("%w: %v", ErrMetadataFetchPanicked, r))
		if r != nil {
			panic(r)
		}
	}()

	md, err = c.fetch(ctx)
	settled = true
	return c.settle(md, err)
}

// settle stores the outcome and releases waiters in arrival order.
func (c *MetadataCache) settle(md Metadata, err error) (Metadata, error) {
	c.mu.Lock()
	if err != nil {
		md = Metadata{}
		c.state = CacheEmpty
		c.value = Metadata{}
	} else {
		c.state = CacheReady
		c.value = md.clone()
	}
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, release := range waiters {
		release(metadataResult{md: md.clone(), err: err})
	}
	return md, err
}

// clone copies the table list so callers cannot change the cached value.
func (m Metadata) clone() Metadata {
	m.Tables = slices.Clone(m.Tables)
	return m
}

// State returns the current cache state.
func (c *MetadataCache) State() CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cached returns the metadata if the cache is ready.
func (c *MetadataCache) Cached() (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value.clone(), c.state == CacheReady
}

// Invalidate drops a cached value. A fetch in flight is not affected.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CacheReady {
		c.state = CacheEmpty
		c.value = Metadata{}
	}
}
