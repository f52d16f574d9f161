// Package limits throttles wizard clients: a token bucket per client for
// requests and a cap on concurrent live connections per client.
package limits

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a client is over its budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DefaultMaxClients bounds how many client buckets are remembered.
const DefaultMaxClients = 10000

// RateLimiter keeps one token bucket per client key. The least recently
// seen clients are forgotten once maxClients is reached.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst per client.
func NewRateLimiter(rps float64, burst, maxClients int) (*RateLimiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, errors.New("limits: rate and burst must be positive")
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	cache, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, buckets: cache}, nil
}

// Allow reports whether key may make one more request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).Allow()
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if b, ok := rl.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(rl.limit, rl.burst)
	// Another request may have raced us in; keep whichever landed first.
	if prev, ok, _ := rl.buckets.PeekOrAdd(key, b); ok {
		return prev
	}
	return b
}

// Clients returns how many client buckets are held.
func (rl *RateLimiter) Clients() int {
	return rl.buckets.Len()
}

// Middleware rejects requests over budget with 429 and a JSON error.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientKey(r)) {
			reject(w, rl.limit)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, limit rate.Limit) {
	retry := 1
	if limit > 0 && limit < 1 {
		retry = int(1/float64(limit)) + 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrRateLimitExceeded.Error()})
}

// ClientKey identifies the caller: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
