// Package transport carries live wizard updates to the browser. WebSocket
// is the primary channel; Server-Sent Events is the fallback for clients
// behind proxies that drop upgrades.
package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
)

// Common transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrTransportFull    = errors.New("transport buffer full")
)

// Type identifies the transport mechanism.
type Type string

const (
	TypeWebSocket Type = "websocket"
	TypeSSE       Type = "sse"
)

// Inbound is an event sent by the browser.
type Inbound struct {
	Ref     string         `json:"ref,omitempty"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ParseInbound decodes one inbound frame.
func ParseInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, ErrInvalidMessage
	}
	if in.Event == "" {
		return Inbound{}, ErrInvalidMessage
	}
	return in, nil
}

// Config holds common transport settings.
type Config struct {
	WriteTimeout time.Duration

	// PingInterval paces keepalives. A peer that misses a pong for
	// WriteTimeout is dropped.
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	ReceiveBuffer  int

	// AllowedOrigins lists cross-origin pages allowed to connect. Same-origin
	// requests are always allowed; "*" allows everyone.
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults. Label uploads travel as data
// URLs, so inbound frames may be large.
func DefaultConfig() *Config {
	return &Config{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 2 << 20,
		SendBuffer:     64,
		ReceiveBuffer:  16,
	}
}

// base holds the queues and lifecycle shared by transports.
type base struct {
	config    *Config
	connected bool
	sendCh    chan core.Message
	recvCh    chan Inbound
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

func newBase(config *Config) *base {
	if config == nil {
		config = DefaultConfig()
	}
	return &base{
		config:  config,
		sendCh:  make(chan core.Message, config.SendBuffer),
		recvCh:  make(chan Inbound, config.ReceiveBuffer),
		closeCh: make(chan struct{}),
	}
}

// IsConnected returns the connection status.
func (b *base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *base) setConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

// Receive returns inbound browser events.
func (b *base) Receive() <-chan Inbound {
	return b.recvCh
}

// Done is closed when the transport closes.
func (b *base) Done() <-chan struct{} {
	return b.closeCh
}

func (b *base) shutdown() {
	b.closeOnce.Do(func() {
		b.setConnected(false)
		close(b.closeCh)
	})
}

// enqueue queues msg without blocking. A full queue means the client is
// not keeping up and the message is refused.
func (b *base) enqueue(msg core.Message) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	select {
	case b.sendCh <- msg:
		return nil
	case <-b.closeCh:
		return ErrConnectionClosed
	default:
		return ErrTransportFull
	}
}

func (b *base) push(in Inbound) {
	select {
	case b.recvCh <- in:
	case <-b.closeCh:
	default:
	}
}
