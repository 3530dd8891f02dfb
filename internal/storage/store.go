package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// ErrNotFound is returned when no snapshot is stored for an inventory.
var ErrNotFound = errors.New("storage: snapshot not found")

// SnapshotStore saves and loads inventories between sessions.
type SnapshotStore interface {
	Save(ctx context.Context, inv *inventory.Inventory) error
	Load(ctx context.Context, inv *inventory.Inventory) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps zstd-compressed storage-format snapshots in redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	codec  *Codec
	logger logrus.FieldLogger
}

// NewRedisStore creates a store using keys "<prefix><inventory id>". A zero
// ttl keeps snapshots forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger logrus.FieldLogger) *RedisStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		codec:  &Codec{},
		logger: logger.WithField("component", "redis-store"),
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Save writes the inventory's current state.
func (s *RedisStore) Save(ctx context.Context, inv *inventory.Inventory) error {
	raw, err := inv.SerializeForStorage()
	if err != nil {
		return fmt.Errorf("serialize inventory %s: %w", inv.ID, err)
	}
	packed, err := s.codec.Encode(raw)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(inv.ID), packed, s.ttl).Err(); err != nil {
		return fmt.Errorf("save inventory %s: %w", inv.ID, err)
	}
	s.logger.Debugf("Saved inventory %s (%d bytes, %d compressed).", inv.ID, len(raw), len(packed))
	return nil
}

// Load replaces inv's contents with the stored snapshot.
func (s *RedisStore) Load(ctx context.Context, inv *inventory.Inventory) error {
	packed, err := s.client.Get(ctx, s.key(inv.ID)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load inventory %s: %w", inv.ID, err)
	}
	raw, err := s.codec.Decode(packed)
	if err != nil {
		return err
	}
	return inv.DeserializeFromStorage(raw)
}

// Delete removes a stored snapshot.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// MemoryStore keeps compressed snapshots in process memory. Used when redis
// persistence is disabled and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	codec Codec
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save writes the inventory's current state.
func (m *MemoryStore) Save(_ context.Context, inv *inventory.Inventory) error {
	raw, err := inv.SerializeForStorage()
	if err != nil {
		return err
	}
	packed, err := m.codec.Encode(raw)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[inv.ID] = packed
	m.mu.Unlock()
	return nil
}

// Load replaces inv's contents with the stored snapshot.
func (m *MemoryStore) Load(_ context.Context, inv *inventory.Inventory) error {
	m.mu.RLock()
	packed, ok := m.data[inv.ID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	raw, err := m.codec.Decode(packed)
	if err != nil {
		return err
	}
	return inv.DeserializeFromStorage(raw)
}

// Delete removes a stored snapshot.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}
