// Package pubsub carries wizard change notifications from the session that
// made a change to every live connection watching it.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

// channelWrapper wraps a channel with sync.Once for safe closing.
type channelWrapper struct {
	ch        chan []byte
	closeOnce sync.Once
}

func newChannelWrapper(size int) *channelWrapper {
	return &channelWrapper{
		ch: make(chan []byte, size),
	}
}

func (cw *channelWrapper) close() {
	cw.closeOnce.Do(func() {
		close(cw.ch)
	})
}

// Common pubsub errors.
var (
	ErrPubSubClosed = errors.New("pubsub is closed")
	ErrBadEnvelope  = errors.New("malformed pubsub envelope")
)

// PubSub is the interface for pub/sub implementations.
type PubSub interface {
	// Subscribe adds a handler for a topic. Handlers for one subscription
	// run sequentially on their own goroutine.
	Subscribe(topic string, handler func(msg []byte)) (Subscription, error)

	// Publish sends a message to all subscribers of a topic.
	Publish(ctx context.Context, topic string, msg []byte) error

	// Close shuts down the pubsub system.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes this subscription.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// subscriberBuffer is the per-subscriber queue. Messages beyond it are
// dropped: a slow websocket must not stall the wizard.
const subscriberBuffer = 64

// MemoryPubSub is an in-memory pub/sub implementation for a single node.
type MemoryPubSub struct {
	topics map[string]map[string]*channelWrapper
	subs   map[string]*memorySubscription
	nextID int
	closed bool
	mu     sync.RWMutex
}

// NewMemoryPubSub creates a new in-memory pub/sub.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		topics: make(map[string]map[string]*channelWrapper),
		subs:   make(map[string]*memorySubscription),
	}
}

// Subscribe adds a handler for a topic.
func (ps *MemoryPubSub) Subscribe(topic string, handler func(msg []byte)) (Subscription, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil, ErrPubSubClosed
	}

	if ps.topics[topic] == nil {
		ps.topics[topic] = make(map[string]*channelWrapper)
	}

	ps.nextID++
	subID := topic + "#" + strconv.Itoa(ps.nextID)

	chWrapper := newChannelWrapper(subscriberBuffer)
	ps.topics[topic][subID] = chWrapper

	ctx, cancel := context.WithCancel(context.Background())
	sub := &memorySubscription{
		id:        subID,
		topic:     topic,
		ps:        ps,
		chWrapper: chWrapper,
		cancel:    cancel,
	}
	ps.subs[subID] = sub

	go func() {
		defer func() {
			// A panicking handler ends its own subscription only.
			_ = recover()
		}()

		for {
			select {
			case msg, ok := <-chWrapper.ch:
				if !ok || sub.closed.Load() {
					return
				}
				handler(msg)
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// Publish sends a message to all subscribers of a topic.
func (ps *MemoryPubSub) Publish(ctx context.Context, topic string, msg []byte) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed {
		return ErrPubSubClosed
	}

	subscribers := ps.topics[topic]
	if subscribers == nil {
		return nil
	}

	msgCopy := make([]byte, len(msg))
	copy(msgCopy, msg)

	for subID, chWrapper := range subscribers {
		if sub := ps.subs[subID]; sub != nil && sub.closed.Load() {
			continue
		}
		select {
		case chWrapper.ch <- msgCopy:
		default:
		}
	}
	return nil
}

// Close shuts down the pubsub system.
func (ps *MemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	for _, subscribers := range ps.topics {
		for _, chWrapper := range subscribers {
			chWrapper.close()
		}
	}
	ps.topics = make(map[string]map[string]*channelWrapper)
	ps.subs = make(map[string]*memorySubscription)
	return nil
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *MemoryPubSub) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.topics[topic])
}

type memorySubscription struct {
	id        string
	topic     string
	ps        *MemoryPubSub
	chWrapper *channelWrapper
	closed    atomic.Bool
	cancel    context.CancelFunc
}

// Unsubscribe removes this subscription. It is safe to call more than once
// and concurrently with Publish and Close.
func (s *memorySubscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()

	if subscribers := s.ps.topics[s.topic]; subscribers != nil {
		delete(subscribers, s.id)
		if len(subscribers) == 0 {
			delete(s.ps.topics, s.topic)
		}
	}
	delete(s.ps.subs, s.id)
	s.chWrapper.close()
	return nil
}

func (s *memorySubscription) Topic() string {
	return s.topic
}

// Envelope is the wire form of a broadcast event.
type Envelope struct {
	Event   string          `json:"event"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Broadcaster publishes JSON events on top of a PubSub.
type Broadcaster struct {
	pubsub PubSub
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(ps PubSub) *Broadcaster {
	return &Broadcaster{pubsub: ps}
}

// Broadcast sends event with payload encoded as JSON.
func (b *Broadcaster) Broadcast(ctx context.Context, topic, event string, payload any) error {
	return b.BroadcastFrom(ctx, topic, "", event, payload)
}

// BroadcastFrom is Broadcast with the sender recorded, so a subscriber can
// skip its own events.
func (b *Broadcaster) BroadcastFrom(ctx context.Context, topic, sender, event string, payload any) error {
	env := Envelope{Event: event, Sender: sender}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.pubsub.Publish(ctx, topic, data)
}

// Subscribe delivers decoded envelopes for topic. Messages that are not
// envelopes are skipped.
func (b *Broadcaster) Subscribe(topic string, handler func(Envelope)) (Subscription, error) {
	return b.pubsub.Subscribe(topic, func(msg []byte) {
		env, err := DecodeEnvelope(msg)
		if err != nil {
			return
		}
		handler(env)
	})
}

// DecodeEnvelope parses a broadcast message.
func DecodeEnvelope(msg []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
		return Envelope{}, ErrBadEnvelope
	}
	return env, nil
}
