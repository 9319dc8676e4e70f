package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorIdleTTL = 5 * time.Minute
	sweepInterval  = time.Minute
)

// RateLimit bounds one route group per client.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

func (l RateLimit) limiter() *rate.Limiter {
	perSecond := l.RequestsPerMinute / 60
	if perSecond <= 0 {
		perSecond = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(l.Burst, 1))
}

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// group holds the buckets of every client hitting one route group.
type group struct {
	limit    RateLimit
	visitors map[string]*visitor
}

// RateLimiter applies a token bucket per route group and client. Groups
// without a configured limit pass through.
type RateLimiter struct {
	logger    *slog.Logger
	now       func() time.Time
	onLimit   func(group string)
	mu        sync.Mutex
	groups    map[string]*group
	lastSweep time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	groups := make(map[string]*group, len(limits))
	for name, limit := range limits {
		groups[name] = &group{limit: limit, visitors: make(map[string]*visitor)}
	}
	return &RateLimiter{logger: logger, now: time.Now, groups: groups}
}

// OnLimit registers a hook called with the route group of every throttled
// request.
func (r *RateLimiter) OnLimit(fn func(group string)) { r.onLimit = fn }

func (r *RateLimiter) Middleware(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if _, ok := r.groups[name]; !ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			client := clientAddr(req)
			reservation := r.bucket(name, client).Reserve()
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				r.logger.Debug("request throttled", slog.String("group", name), slog.String("client", client))
				if r.onLimit != nil {
					r.onLimit(name)
				}
				writeThrottled(w, delay)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) bucket(name, client string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) >= sweepInterval {
		r.sweepLocked(now)
	}
	g := r.groups[name]
	v, ok := g.visitors[client]
	if !ok {
		v = &visitor{bucket: g.limit.limiter()}
		g.visitors[client] = v
	}
	v.seen = now
	return v.bucket
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	for _, g := range r.groups {
		for client, v := range g.visitors {
			if now.Sub(v.seen) > visitorIdleTTL {
				delete(g.visitors, client)
			}
		}
	}
	r.lastSweep = now
}

func writeThrottled(w http.ResponseWriter, delay time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": "rate_limited", "message": "too many requests"})
}

// clientAddr prefers proxy headers over the socket peer.
func clientAddr(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
