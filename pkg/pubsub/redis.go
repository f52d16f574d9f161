package pubsub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub implements PubSub over Redis channels, so live connections on
// any instance see changes made on another.
type RedisPubSub struct {
	client *redis.Client
	owned  bool

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

// NewRedisPubSub connects to the Redis server at redisURL
// (redis://[:password@]host:port/db).
func NewRedisPubSub(ctx context.Context, redisURL string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	ps := NewRedisPubSubWithClient(client)
	ps.owned = true
	return ps, nil
}

// NewRedisPubSubWithClient uses an existing client. Close leaves the client
// open.
func NewRedisPubSubWithClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

// Subscribe adds a handler for a topic. It returns once Redis has
// confirmed the subscription.
func (ps *RedisPubSub) Subscribe(topic string, handler func(msg []byte)) (Subscription, error) {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil, ErrPubSubClosed
	}
	ps.mu.Unlock()

	ctx := context.Background()
	rps := ps.client.Subscribe(ctx, topic)
	if _, err := rps.Receive(ctx); err != nil {
		rps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{topic: topic, ps: ps, rps: rps}

	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		rps.Close()
		return nil, ErrPubSubClosed
	}
	ps.subs[sub] = struct{}{}
	ps.mu.Unlock()

	ch := rps.Channel(redis.WithChannelSize(subscriberBuffer))
	go func() {
		defer func() { _ = recover() }()
		for msg := range ch {
			if sub.closed.Load() {
				return
			}
			handler([]byte(msg.Payload))
		}
	}()
	return sub, nil
}

// Publish sends a message to all subscribers of a topic on every instance.
func (ps *RedisPubSub) Publish(ctx context.Context, topic string, msg []byte) error {
	ps.mu.Lock()
	closed := ps.closed
	ps.mu.Unlock()
	if closed {
		return ErrPubSubClosed
	}
	return ps.client.Publish(ctx, topic, msg).Err()
}

// Close ends every subscription.
func (ps *RedisPubSub) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	subs := ps.subs
	ps.subs = make(map[*redisSubscription]struct{})
	ps.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	if ps.owned {
		return ps.client.Close()
	}
	return nil
}

type redisSubscription struct {
	topic  string
	ps     *RedisPubSub
	rps    *redis.PubSub
	closed atomic.Bool
}

func (s *redisSubscription) Unsubscribe() error {
	s.ps.mu.Lock()
	delete(s.ps.subs, s)
	s.ps.mu.Unlock()
	return s.close()
}

func (s *redisSubscription) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.rps.Close()
}

func (s *redisSubscription) Topic() string {
	return s.topic
}
