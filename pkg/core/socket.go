package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Common socket errors.
var (
	ErrSocketClosed = errors.New("socket is closed")
	ErrSendFailed   = errors.New("failed to send message")
)

// Transport is the connection a socket writes to.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close() error
	IsConnected() bool
}

// Message is one server push.
type Message struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Socket is one live browser connection bound to a customer session.
type Socket struct {
	id          string
	session     string
	connectedAt time.Time

	// Unix nanoseconds.
	lastActivity atomic.Int64

	transport Transport
	connected bool
	mu        sync.RWMutex
}

// NewSocket creates a connected socket.
func NewSocket(id, session string, transport Transport) *Socket {
	now := time.Now()
	s := &Socket{
		id:          id,
		session:     session,
		connectedAt: now,
		transport:   transport,
		connected:   true,
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// ID returns the socket's unique identifier.
func (s *Socket) ID() string {
	return s.id
}

// Session returns the customer session the socket belongs to.
func (s *Socket) Session() string {
	return s.session
}

// IsConnected returns true if the socket is connected.
func (s *Socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.transport != nil && s.transport.IsConnected()
}

// LastActivity returns the time of last activity.
func (s *Socket) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// UpdateActivity updates the last activity timestamp.
func (s *Socket) UpdateActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Send writes msg to the transport.
func (s *Socket) Send(ctx context.Context, msg Message) error {
	s.mu.RLock()
	connected := s.connected
	transport := s.transport
	s.mu.RUnlock()

	if !connected || transport == nil || !transport.IsConnected() {
		return ErrSocketClosed
	}

	s.UpdateActivity()
	if err := transport.Send(ctx, msg); err != nil {
		s.mu.RLock()
		stillConnected := s.connected
		s.mu.RUnlock()
		if !stillConnected {
			return ErrSocketClosed
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Push sends an event on the socket's own topic.
func (s *Socket) Push(ctx context.Context, event string, payload any) error {
	return s.Send(ctx, Message{
		Topic:   "wizard:" + s.session,
		Event:   event,
		Payload: payload,
	})
}

// Close closes the socket connection.
func (s *Socket) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	transport := s.transport
	s.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}

// SocketManager tracks the live sockets of every session.
type SocketManager struct {
	sockets    map[string]*Socket
	isShutdown bool
	mu         sync.RWMutex
}

// NewSocketManager creates a new socket manager.
func NewSocketManager() *SocketManager {
	return &SocketManager{
		sockets: make(map[string]*Socket),
	}
}

// Add registers a socket. It fails once the manager is shut down.
func (sm *SocketManager) Add(socket *Socket) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.isShutdown {
		return ErrSocketClosed
	}
	sm.sockets[socket.ID()] = socket
	return nil
}

// Remove unregisters a socket.
func (sm *SocketManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sockets, id)
}

// Count returns the number of active sockets.
func (sm *SocketManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sockets)
}

// ForSession returns the sockets bound to session.
func (sm *SocketManager) ForSession(session string) []*Socket {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var out []*Socket
	for _, s := range sm.sockets {
		if s.session == session {
			out = append(out, s)
		}
	}
	return out
}

// Shutdown closes every socket. Later Adds fail.
func (sm *SocketManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.isShutdown {
		sm.mu.Unlock()
		return nil
	}
	sm.isShutdown = true
	sockets := sm.sockets
	sm.sockets = make(map[string]*Socket)
	sm.mu.Unlock()

	var errs []error
	for _, s := range sockets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CleanupInactive closes and removes sockets idle for longer than maxInactive.
func (sm *SocketManager) CleanupInactive(maxInactive time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, s := range sm.sockets {
		if now.Sub(s.LastActivity()) > maxInactive {
			s.Close()
			delete(sm.sockets, id)
			removed++
		}
	}
	return removed
}
