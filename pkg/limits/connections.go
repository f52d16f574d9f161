package limits

import (
	"net/http"
	"sync"
	"sync/atomic"
)

// ConnectionLimiter caps concurrent live connections per client.
type ConnectionLimiter struct {
	mu       sync.Mutex
	counts   map[string]int
	maxPerIP int

	blocked atomic.Int64
}

// NewConnectionLimiter allows maxPerIP live connections per client.
func NewConnectionLimiter(maxPerIP int) *ConnectionLimiter {
	return &ConnectionLimiter{
		counts:   make(map[string]int),
		maxPerIP: maxPerIP,
	}
}

// Acquire takes a slot for key. It returns false when key is at its cap.
func (cl *ConnectionLimiter) Acquire(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.counts[key] >= cl.maxPerIP {
		cl.blocked.Add(1)
		return false
	}
	cl.counts[key]++
	return true
}

// Release returns a slot taken by Acquire.
func (cl *ConnectionLimiter) Release(key string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.counts[key] <= 1 {
		delete(cl.counts, key)
		return
	}
	cl.counts[key]--
}

// Count returns key's open connections.
func (cl *ConnectionLimiter) Count(key string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.counts[key]
}

// Blocked returns how many acquisitions were refused.
func (cl *ConnectionLimiter) Blocked() int64 {
	return cl.blocked.Load()
}

// Middleware holds a slot for the lifetime of each request. Live
// endpoints stay inside the handler for the whole connection.
func (cl *ConnectionLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientKey(r)
		if !cl.Acquire(key) {
			http.Error(w, "Too Many Connections", http.StatusTooManyRequests)
			return
		}
		defer cl.Release(key)
		next.ServeHTTP(w, r)
	})
}
