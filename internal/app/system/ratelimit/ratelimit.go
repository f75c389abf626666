// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/dalemusser/flathub/internal/app/system/respond"
)

// Limiter counts requests per key in fixed windows. It is safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	counts  map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
	done    chan struct{}
	stopped sync.Once
}

type bucket struct {
	n     int
	until time.Time
}

// New returns a limiter admitting limit requests per key per window. A
// goroutine sweeps expired buckets until Stop is called.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		counts: make(map[string]*bucket),
		limit:  limit,
		window: window,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go l.sweep(2 * window)
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.counts[key]
	if b == nil || !now.Before(b.until) {
		l.counts[key] = &bucket{n: 1, until: now.Add(l.window)}
		return true
	}
	if b.n >= l.limit {
		return false
	}
	b.n++
	return true
}

// Remaining returns how many requests key may still make in its window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.counts[key]
	if b == nil || !l.now().Before(b.until) {
		return l.limit
	}
	return max(l.limit-b.n, 0)
}

// RetryAfter returns how long until key's window resets; zero if it has none.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.counts[key]
	if b == nil {
		return 0
	}
	return max(b.until.Sub(l.now()), 0)
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.counts, key)
	l.mu.Unlock()
}

// Stop ends the sweeper. Allow keeps working afterwards.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.done) })
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.mu.Lock()
			now := l.now()
			for k, b := range l.counts {
				if !now.Before(b.until) {
					delete(l.counts, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// ClientIP returns the caller's address: the first X-Forwarded-For hop,
// then X-Real-IP, then RemoteAddr without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Key identifies who a request is counted against: the signed-in user when
// there is one, otherwise the client IP.
func Key(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok && u.ID != "" {
		return "user:" + u.ID
	}
	return "ip:" + ClientIP(r)
}

// Writes throttles state-changing requests. Safe methods (GET, HEAD,
// OPTIONS) pass through uncounted. A nil limiter disables throttling.
func Writes(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			key := Key(r)
			if !l.Allow(key) {
				secs := int(l.RetryAfter(key).Round(time.Second) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				respond.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests; try again shortly")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
