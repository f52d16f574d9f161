package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
)

// ErrOriginNotAllowed is returned when an upgrade comes from a foreign page.
var ErrOriginNotAllowed = errors.New("origin not allowed")

// WebSocket is a server-side websocket connection.
type WebSocket struct {
	*base
	conn *websocket.Conn

	// ctx bounds reads; cancelling it tears the connection down.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// OriginAllowed reports whether a page at origin may connect to host.
func OriginAllowed(origin, host string, allowed []string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == host {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		if au, err := url.Parse(a); err == nil && au.Host != "" && au.Host == u.Host {
			return true
		}
	}
	return false
}

// Accept upgrades the request. The connection runs until Close, a read
// error, or the peer closing.
func Accept(w http.ResponseWriter, r *http.Request, config *Config) (*WebSocket, error) {
	t := &WebSocket{base: newBase(config)}

	if !OriginAllowed(r.Header.Get("Origin"), r.Host, t.config.AllowedOrigins) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, ErrOriginNotAllowed
	}

	// Origin was checked above against the configured list.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}
	conn.SetReadLimit(t.config.MaxMessageSize)

	t.conn = conn
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.setConnected(true)

	t.wg.Add(3)
	go t.readLoop()
	go t.writeLoop()
	go t.pingLoop()
	return t, nil
}

// Type returns TypeWebSocket.
func (t *WebSocket) Type() Type {
	return TypeWebSocket
}

// Send queues msg for delivery.
func (t *WebSocket) Send(ctx context.Context, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.enqueue(msg)
}

// Close performs the closing handshake and waits for the connection's
// loops to stop. Only the first call does any work.
func (t *WebSocket) Close() error {
	t.closeOnce.Do(func() {
		t.shutdown()
		t.closeErr = t.conn.Close(websocket.StatusNormalClosure, "closing")
		t.cancel()
	})
	t.wg.Wait()
	return t.closeErr
}

func (t *WebSocket) stop() {
	t.shutdown()
	t.cancel()
}

func (t *WebSocket) readLoop() {
	defer t.wg.Done()
	defer t.stop()

	for {
		_, data, err := t.conn.Read(t.ctx)
		if err != nil {
			return
		}

		in, err := ParseInbound(data)
		if err != nil {
			continue
		}
		if in.Event == "ping" {
			_ = t.enqueue(core.Message{Event: "pong"})
			continue
		}
		t.push(in)
	}
}

func (t *WebSocket) writeLoop() {
	defer t.wg.Done()

	for {
		select {
		case msg := <-t.sendCh:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err = t.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				t.stop()
				return
			}
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocket) pingLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(t.ctx, t.config.WriteTimeout)
			err := t.conn.Ping(ctx)
			cancel()
			if err != nil {
				t.stop()
				return
			}
		case <-t.closeCh:
			return
		}
	}
}
