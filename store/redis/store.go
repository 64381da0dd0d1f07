// Package redis provides a Redis-backed Store on Grove KV. Pending entries
// survive a relay restart, so confirmations arriving after a redeploy still
// resolve.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	relaystore "github.com/xraph/chatrelay/store"
)

// compile-time interface check
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store using Redis via Grove KV. Plain key reads go
// through kv; the sorted-set index and the claim scripts use the unwrapped
// client.
type Store struct {
	kv     *kv.Store
	rdb    goredis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a new Redis store backed by Grove KV. The store owns the kv
// store and closes it in Close.
func New(store *kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		rdb:    redisdriver.UnwrapClient(store),
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a Grove KV redis driver to url
// ("redis://[:password@]host:port/db") and returns a store over it.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	drv := redisdriver.New()
	if err := drv.Open(ctx, url); err != nil {
		return nil, fmt.Errorf("chatrelay/redis: open driver: %w", err)
	}
	store, err := kv.Open(drv)
	if err != nil {
		return nil, fmt.Errorf("chatrelay/redis: open kv store: %w", err)
	}
	return New(store, opts...), nil
}

// Client returns the unwrapped go-redis client.
func (s *Store) Client() goredis.UniversalClient {
	return s.rdb
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Close closes the KV store.
func (s *Store) Close() error {
	return s.kv.Close()
}

// scoreFromTime converts a time.Time to a sorted set score (unix seconds as float64).
func scoreFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// isNotFound checks if an error is a KV not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// getEntity retrieves and decodes a JSON entity from a KV key.
func (s *Store) getEntity(ctx context.Context, key string, dest any) error {
	raw, err := s.kv.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// encodeEntity encodes an entity for storage under a KV key.
func encodeEntity(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("chatrelay/redis: marshal entity: %w", err)
	}
	return raw, nil
}
