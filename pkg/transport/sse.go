package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SSE pushes messages as Server-Sent Events. It is send-only; browsers on
// SSE post their events over plain HTTP.
type SSE struct {
	*base
	w       http.ResponseWriter
	flusher http.Flusher
	eventID int64
	mu      sync.Mutex
}

// NewSSE prepares a stream on w. Call Serve to start writing.
func NewSSE(w http.ResponseWriter, config *Config) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	t := &SSE{base: newBase(config), w: w, flusher: flusher}
	t.setConnected(true)
	return t, nil
}

// Type returns TypeSSE.
func (t *SSE) Type() Type {
	return TypeSSE
}

// Send queues msg for delivery.
func (t *SSE) Send(ctx context.Context, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.enqueue(msg)
}

// Close ends the stream. Serve returns shortly after.
func (t *SSE) Close() error {
	t.shutdown()
	return nil
}

// Serve writes queued messages and heartbeats until ctx ends or the
// transport is closed. It must run on the request goroutine.
func (t *SSE) Serve(ctx context.Context, r *http.Request) error {
	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		if OriginAllowed(origin, r.Host, t.config.AllowedOrigins) {
			h.Set("Access-Control-Allow-Origin", origin)
		}
	}
	t.w.WriteHeader(http.StatusOK)
	t.flusher.Flush()

	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()
	defer t.shutdown()

	for {
		select {
		case msg := <-t.sendCh:
			if err := t.write(msg.Event, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := t.comment("heartbeat"); err != nil {
				return err
			}
		case <-t.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *SSE) write(event string, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.eventID++
	if _, err := fmt.Fprintf(t.w, "id: %d\nevent: %s\ndata: %s\n\n", t.eventID, event, data); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *SSE) comment(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.w, ": %s\n\n", text); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}
