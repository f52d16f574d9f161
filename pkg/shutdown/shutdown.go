// Package shutdown stops candled's parts in order: live connections and
// wizard views first, then the HTTP listener, the broker, and snapshot
// storage last so views terminating late can still save.
package shutdown

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gabrielmiguelok/candlekit/pkg/logging"
)

// Common shutdown errors.
var (
	ErrShutdownTimeout = errors.New("shutdown timed out")
	ErrAlreadyClosed   = errors.New("shutdown already ran")
)

// Stage priorities; lower runs first.
const (
	PriorityLive    = 100
	PriorityHTTP    = 200
	PriorityBroker  = 300
	PriorityStorage = 400
)

// Hook is one shutdown step.
type Hook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// Handler runs registered hooks once, in priority order, within a timeout.
type Handler struct {
	timeout time.Duration
	logger  logging.Logger

	mu     sync.Mutex
	hooks  []Hook
	closed bool
	done   chan struct{}
}

// NewHandler creates a handler whose hooks share timeout.
func NewHandler(timeout time.Duration, logger logging.Logger) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Handler{timeout: timeout, logger: logger, done: make(chan struct{})}
}

// Register adds fn under name at priority.
func (h *Handler) Register(name string, priority int, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, Hook{Name: name, Priority: priority, Fn: fn})
}

// RegisterCloser registers c.Close.
func (h *Handler) RegisterCloser(name string, priority int, c interface{ Close() error }) {
	h.Register(name, priority, func(context.Context) error { return c.Close() })
}

// Wait blocks until ctx ends and then shuts down.
func (h *Handler) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-h.done:
		return nil
	}
	return h.Shutdown()
}

// Shutdown runs the hooks. Hooks with equal priority keep registration
// order. A hook error does not stop later hooks; the timeout does.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrAlreadyClosed
	}
	h.closed = true
	hooks := append([]Hook(nil), h.hooks...)
	h.mu.Unlock()
	defer close(h.done)

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority < hooks[j].Priority
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for _, hook := range hooks {
		if ctx.Err() != nil {
			h.logger.Error("shutdown timed out", logging.String("pending", hook.Name))
			return errors.Join(append(errs, ErrShutdownTimeout)...)
		}
		start := time.Now()
		err := hook.Fn(ctx)
		fields := []logging.Field{
			logging.String("hook", hook.Name),
			logging.Duration("took", time.Since(start)),
		}
		if err != nil {
			h.logger.Warn("shutdown hook failed", append(fields, logging.Err(err))...)
			errs = append(errs, err)
			continue
		}
		h.logger.Debug("shutdown hook done", fields...)
	}
	return errors.Join(errs...)
}

// Done is closed once Shutdown has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
