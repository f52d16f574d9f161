package preview

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// RenderError is a panic caught by a Boundary.
type RenderError struct {
	Value any
	Stack []byte
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Value)
}

// Boundary catches panics from the code it runs. Once tripped it stays
// tripped, refusing to run anything, until Reset.
type Boundary struct {
	// OnTrip, if set, is called once each time the boundary trips.
	OnTrip func(*RenderError)

	mu  sync.Mutex
	err *RenderError
}

// Run calls fn unless the boundary is tripped. A panic in fn trips it.
func (b *Boundary) Run(fn func()) (err error) {
	b.mu.Lock()
	if b.err != nil {
		defer b.mu.Unlock()
		return b.err
	}
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			re := &RenderError{Value: r, Stack: debug.Stack()}
			b.mu.Lock()
			b.err = re
			b.mu.Unlock()
			if b.OnTrip != nil {
				b.OnTrip(re)
			}
			err = re
		}
	}()
	fn()
	return nil
}

// Err returns the error that tripped the boundary, or nil.
func (b *Boundary) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		return nil
	}
	return b.err
}

// Reset clears a tripped boundary.
func (b *Boundary) Reset() {
	b.mu.Lock()
	b.err = nil
	b.mu.Unlock()
}
