package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matiasleandrokruk/tutora/internal/api/ctxkeys"
)

// RateLimiter is a per-user token bucket for the expensive question routes.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	perMin   int
	idleTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMinute per user with a burst of the same size.
// A non-positive rate disables limiting.
func NewRateLimiter(requestsPerMinute int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(requestsPerMinute) / time.Minute.Seconds()),
		burst:    requestsPerMinute,
		perMin:   requestsPerMinute,
		idleTTL:  10 * time.Minute,
		logger:   logger,
		now:      time.Now,
	}
}

// Middleware limits by authenticated user, falling back to the remote address.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMin <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key, ok := ctxkeys.String(r.Context(), ctxkeys.UserID)
		if !ok {
			key = "ip:" + remoteHost(r.RemoteAddr)
		}

		lim := rl.limiter(key)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.perMin))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(math.Max(0, lim.TokensAt(rl.now())-1))))

		if !lim.AllowN(rl.now(), 1) {
			rl.logger.Warn("rate limit exceeded", zap.String("key", key), zap.String("path", r.URL.Path))
			retry := time.Duration(float64(time.Second) / float64(rl.limit))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.Seconds()))))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.limiters[key]
	if !ok {
		rl.evictIdle(now)
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst), lastSeen: now}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// evictIdle drops limiters unused for idleTTL. Called with mu held.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.idleTTL {
			delete(rl.limiters, k)
		}
	}
}

// remoteHost strips the port so every connection from one client shares a bucket.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
