package core

// limiter.go bounds how many transport calls run at once.
//
// Remote spreadsheet APIs enforce per-user quotas, so every Values and
// BatchValues call goes through a FetchLimiter slot. A caller that cannot get
// a slot within maxWait fails with ErrTooManyFetches instead of queueing
// forever. WaitForDrain lets shutdown wait for calls still in flight.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyFetches is returned when no fetch slot frees up in time.
var ErrTooManyFetches = errors.New("too many concurrent fetches, please try again later")

const (
	// DefaultMaxConcurrentFetches is the slot count used when none is given.
	DefaultMaxConcurrentFetches = 4

	// DefaultMaxFetchWait is how long Acquire waits for a slot by default.
	DefaultMaxFetchWait = 30 * time.Second
)

// FetchLimiter is a semaphore over transport calls.
type FetchLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	drained chan struct{} // closed while active == 0
}

// NewFetchLimiter allows maxConcurrent calls at once, each waiting at most
// maxWait for a slot. Non-positive arguments select the defaults.
func NewFetchLimiter(maxConcurrent int, maxWait time.Duration) *FetchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFetches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxFetchWait
	}

	drained := make(chan struct{})
	close(drained)
	return &FetchLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		drained: drained,
	}
}

// Acquire takes a slot. The caller must Release it.
// Returns ctx.Err() if ctx ends first, ErrTooManyFetches on timeout.
func (l *FetchLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.started()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyFetches
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *FetchLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.started()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *FetchLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.drained)
	}
	l.mu.Unlock()

	<-l.slots
}

// Do runs fn while holding a slot.
func (l *FetchLimiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

func (l *FetchLimiter) started() {
	l.mu.Lock()
	if l.active == 0 {
		l.drained = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// WaitForDrain blocks until no call holds a slot or ctx ends.
func (l *FetchLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	drained := l.drained
	l.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchLimiterStatus is a point-in-time view of a FetchLimiter.
type FetchLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports current slot usage.
func (l *FetchLimiter) Status() FetchLimiterStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()

	return FetchLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
