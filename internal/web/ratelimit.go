package web

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

var msgRateLimited = core.UserMessage{
	Message: "Too many requests",
	Action:  "Please wait a minute before retrying",
	Code:    "RATE001",
}

// rateLimiter allows rate requests per window for each client address.
// RemoteAddr is expected to be the bare client address set by the
// TrustedRealIP middleware.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	remaining int
	reset     time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// run evicts idle visitors until Close.
func (rl *rateLimiter) run() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evict()
		case <-rl.stop:
			return
		}
	}
}

func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.reset) > rl.window {
			delete(rl.visitors, ip)
		}
	}
}

// Close stops the eviction loop.
func (rl *rateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// allow consumes one request for ip. When refused, it also returns how long
// until the window resets.
func (rl *rateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok || !now.Before(v.reset) {
		rl.visitors[ip] = &visitor{remaining: rl.rate - 1, reset: now.Add(rl.window)}
		return true, 0
	}
	if v.remaining <= 0 {
		return false, v.reset.Sub(now)
	}
	v.remaining--
	return true, 0
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.allow(r.RemoteAddr)
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeJSONStatus(w, http.StatusTooManyRequests, newErrorResponse(msgRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}
