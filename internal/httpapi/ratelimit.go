package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const bucketIdleTTL = 10 * time.Minute

type RateLimitConfig struct {
	IPPerMinute      int
	IPBurst          int
	SessionPerMinute int
	SessionBurst     int
	Now              func() time.Time
}

// RateLimiter applies a token bucket per client IP to every request and a
// second one per session token to state-changing requests, so that one
// signed-in customer cannot flood joins from behind a shared address.
type RateLimiter struct {
	ip      *tokenLimiter
	session *tokenLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionPerMinute <= 0 {
		cfg.SessionPerMinute = cfg.IPPerMinute
	}
	if cfg.SessionBurst <= 0 {
		cfg.SessionBurst = cfg.IPBurst
	}
	return &RateLimiter{
		ip:      newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst, cfg.Now),
		session: newTokenLimiter(cfg.SessionPerMinute, cfg.SessionBurst, cfg.Now),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" {
			if wait, ok := l.ip.take(ip); !ok {
				tooManyRequests(w, r, wait)
				return
			}
		}
		if isWrite(r.Method) {
			if token := sessionTokenFromRequest(r); token != "" {
				if wait, ok := l.session.take(token); !ok {
					tooManyRequests(w, r, wait)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func tooManyRequests(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type tokenLimiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int, now func() time.Time) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:    float64(perMinute) / 60.0,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

func (l *tokenLimiter) allow(key string) bool {
	_, ok := l.take(key)
	return ok
}

// take spends one token for key. When none is left it reports how long
// until the next one refills.
func (l *tokenLimiter) take(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, last: now}
		return 0, true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = math.Min(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		missing := (1 - b.tokens) / l.rate
		return time.Duration(missing * float64(time.Second)), false
	}
	b.tokens--
	return 0, true
}

// sweep drops buckets idle long enough to have refilled completely.
func (l *tokenLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < bucketIdleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.last) >= bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
