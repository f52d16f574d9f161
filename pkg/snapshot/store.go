// Package snapshot persists wizard snapshots behind a small key/value
// abstraction. Backends: in-memory (optionally quota-bounded, the way
// browser storage behaves), file and Redis.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common store errors.
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidData   = errors.New("invalid data format")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is the interface for key/value storage backends.
type Store interface {
	// Get retrieves a value by key. Missing keys return ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with optional TTL (zero means no expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Codec encodes snapshots to bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// SnapshotStore loads and saves one typed snapshot.
type SnapshotStore[T any] interface {
	// Load returns the stored snapshot. ok is false when nothing is stored.
	Load(ctx context.Context) (snap T, ok bool, err error)
	Save(ctx context.Context, snap T) error
	Clear(ctx context.Context) error
}

// Keyed binds a Store, a Codec and a key into a SnapshotStore.
type Keyed[T any] struct {
	store Store
	codec Codec
	key   string
	ttl   time.Duration
}

// KeyedOption configures a Keyed snapshot store.
type KeyedOption func(*keyedConfig)

type keyedConfig struct {
	codec  Codec
	prefix string
	ttl    time.Duration
}

// WithCodec overrides the default msgpack codec.
func WithCodec(c Codec) KeyedOption {
	return func(kc *keyedConfig) {
		kc.codec = c
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) KeyedOption {
	return func(kc *keyedConfig) {
		kc.prefix = prefix
	}
}

// WithTTL sets the snapshot lifetime.
func WithTTL(ttl time.Duration) KeyedOption {
	return func(kc *keyedConfig) {
		kc.ttl = ttl
	}
}

// NewKeyed creates a snapshot store for one key.
func NewKeyed[T any](store Store, key string, opts ...KeyedOption) *Keyed[T] {
	cfg := &keyedConfig{
		codec:  NewMsgPackCodec(),
		prefix: "candle:snapshot:",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Keyed[T]{
		store: store,
		codec: cfg.codec,
		key:   cfg.prefix + key,
		ttl:   cfg.ttl,
	}
}

// Key returns the full storage key.
func (k *Keyed[T]) Key() string {
	return k.key
}

// Load implements SnapshotStore.
func (k *Keyed[T]) Load(ctx context.Context) (T, bool, error) {
	var snap T
	data, err := k.store.Get(ctx, k.key)
	if errors.Is(err, ErrKeyNotFound) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("load %s: %w", k.key, err)
	}
	if err := k.codec.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("decode %s: %w", k.key, err)
	}
	return snap, true, nil
}

// Save implements SnapshotStore.
func (k *Keyed[T]) Save(ctx context.Context, snap T) error {
	data, err := k.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k.key, err)
	}
	if err := k.store.Set(ctx, k.key, data, k.ttl); err != nil {
		return fmt.Errorf("save %s: %w", k.key, err)
	}
	return nil
}

// Clear implements SnapshotStore.
func (k *Keyed[T]) Clear(ctx context.Context) error {
	return k.store.Delete(ctx, k.key)
}
