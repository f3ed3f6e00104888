package server

import (
	"net"
	"net/http"
	stdsync "sync"

	"golang.org/x/time/rate"
)

// rateLimiter buckets requests by remote address and action. It guards the
// endpoints that create rows from unauthenticated callers.
type rateLimiter struct {
	mu       stdsync.Mutex
	buckets  map[string]*rate.Limiter
	perMin   int
	burst    int
	disabled bool
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*rate.Limiter),
		perMin:  perMinute,
		burst:   burst,
	}
}

func (l *rateLimiter) allow(key string) bool {
	if l.disabled {
		return true
	}
	l.mu.Lock()
	bucket := l.buckets[key]
	if bucket == nil {
		bucket = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow()
}

func (s *Server) enforceRateLimit(w http.ResponseWriter, r *http.Request, action string) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if s.limiter.allow(host + ":" + action) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
	return false
}
