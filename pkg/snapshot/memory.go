package snapshot

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. With a quota it behaves like browser
// storage: a Set that would push the total size past the quota fails with
// ErrQuotaExceeded and leaves the previous value in place.
type MemoryStore struct {
	items     map[string]*memoryItem
	quota     int
	used      int
	closed    bool
	cleanupCh chan struct{}
	mu        sync.RWMutex
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (it *memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithQuota bounds the total number of stored value bytes.
func WithQuota(bytes int) MemoryOption {
	return func(ms *MemoryStore) {
		ms.quota = bytes
	}
}

// NewMemoryStore creates a new in-memory store and starts its expiry sweeper.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	ms := &MemoryStore{
		items:     make(map[string]*memoryItem),
		cleanupCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}

	go ms.cleanupLoop()

	return ms
}

// Get retrieves a copy of the value.
func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, ErrStoreClosed
	}

	item, ok := ms.items[key]
	if !ok || item.expired(time.Now()) {
		return nil, ErrKeyNotFound
	}

	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

// Set stores a copy of the value.
func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return ErrStoreClosed
	}

	prev := 0
	if old, ok := ms.items[key]; ok {
		prev = len(old.value)
	}
	if ms.quota > 0 && ms.used-prev+len(value) > ms.quota {
		return ErrQuotaExceeded
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	item := &memoryItem{value: valueCopy}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}

	ms.items[key] = item
	ms.used += len(value) - prev
	return nil
}

// Delete removes a key.
func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return ErrStoreClosed
	}
	ms.deleteLocked(key)
	return nil
}

func (ms *MemoryStore) deleteLocked(key string) {
	if old, ok := ms.items[key]; ok {
		ms.used -= len(old.value)
		delete(ms.items, key)
	}
}

// Close stops the sweeper. Further calls fail with ErrStoreClosed.
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return nil
	}
	ms.closed = true
	close(ms.cleanupCh)
	return nil
}

// Used returns the number of value bytes currently held.
func (ms *MemoryStore) Used() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.used
}

// Len returns the number of stored keys.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.items)
}

func (ms *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.cleanup()
		case <-ms.cleanupCh:
			return
		}
	}
}

func (ms *MemoryStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for key, item := range ms.items {
		if item.expired(now) {
			ms.deleteLocked(key)
		}
	}
}
