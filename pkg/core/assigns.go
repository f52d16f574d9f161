package core

import (
	"encoding/binary"
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"
)

// Assigns is a thread-safe store for component state. Every write is
// hashed so a live connection only receives the keys whose values changed.
type Assigns struct {
	data    map[string]any
	tracker *ChangeTracker
	mu      sync.RWMutex
}

// NewAssigns creates a new assigns store.
func NewAssigns() *Assigns {
	return &Assigns{
		data:    make(map[string]any),
		tracker: NewChangeTracker(),
	}
}

// Get retrieves a value from the store.
func (a *Assigns) Get(key string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data[key]
}

// GetString retrieves a string value.
func (a *Assigns) GetString(key string) string {
	if v, ok := a.Get(key).(string); ok {
		return v
	}
	return ""
}

// Set stores a value and tracks the change.
func (a *Assigns) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.data[key] = value
	a.tracker.Track(key, value)
}

// SetAll sets multiple values at once.
func (a *Assigns) SetAll(values map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, value := range values {
		a.data[key] = value
		a.tracker.Track(key, value)
	}
}

// Data returns a copy of all data.
func (a *Assigns) Data() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[string]any, len(a.data))
	for k, v := range a.data {
		result[k] = v
	}
	return result
}

// Changed returns the values of the keys changed since the last call.
func (a *Assigns) Changed() map[string]any {
	keys := a.tracker.GetChanged()
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = a.data[k]
	}
	return out
}

// Tracker returns the change tracker.
func (a *Assigns) Tracker() *ChangeTracker {
	return a.tracker
}

// ChangeTracker tracks changes in assigns between renders.
type ChangeTracker struct {
	previous map[string]uint64
	changed  map[string]bool
	mu       sync.RWMutex
}

// NewChangeTracker creates a new change tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		previous: make(map[string]uint64),
		changed:  make(map[string]bool),
	}
}

// Track registers a change in a field.
func (ct *ChangeTracker) Track(field string, value any) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	newHash := hashValue(value)

	if prev, ok := ct.previous[field]; !ok || prev != newHash {
		ct.changed[field] = true
	}
	ct.previous[field] = newHash
}

// GetChanged returns the fields that changed, sorted, and clears them.
func (ct *ChangeTracker) GetChanged() []string {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	changed := make([]string, 0, len(ct.changed))
	for field := range ct.changed {
		changed = append(changed, field)
	}
	sort.Strings(changed)

	ct.changed = make(map[string]bool)
	return changed
}

// HasChanges returns true if there are pending changes.
func (ct *ChangeTracker) HasChanges() bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.changed) > 0
}

// Reset clears all tracking state.
func (ct *ChangeTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.previous = make(map[string]uint64)
	ct.changed = make(map[string]bool)
}

// hashValue calculates a fast hash of any value.
func hashValue(v any) uint64 {
	h := fnv.New64a()

	switch val := v.(type) {
	case nil:
		h.Write([]byte{0})
	case string:
		h.Write([]byte(val))
	case int:
		binary.Write(h, binary.LittleEndian, int64(val))
	case int64:
		binary.Write(h, binary.LittleEndian, val)
	case int32:
		binary.Write(h, binary.LittleEndian, val)
	case float64:
		binary.Write(h, binary.LittleEndian, val)
	case float32:
		binary.Write(h, binary.LittleEndian, val)
	case bool:
		if val {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case []any:
		for _, item := range val {
			binary.Write(h, binary.LittleEndian, hashValue(item))
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			binary.Write(h, binary.LittleEndian, hashValue(val[k]))
		}
	default:
		// Fallback: JSON encoding
		data, _ := json.Marshal(val)
		h.Write(data)
	}

	return h.Sum64()
}
