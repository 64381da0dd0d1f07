// Package memory provides an in-memory Store implementation. It is the
// default backend for a single relay process and the one used in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/chatrelay"
	"github.com/xraph/chatrelay/pending"
	relaystore "github.com/xraph/chatrelay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	entries map[string]*pending.Entry // keyed by uid

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]*pending.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return chatrelay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// pending.Store
// ──────────────────────────────────────────────────

// Track records an entry, replacing any entry with the same uid.
func (s *Store) Track(_ context.Context, e *pending.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return chatrelay.ErrStoreClosed
	}

	cp := *e
	s.entries[e.UID] = &cp
	return nil
}

// Get returns the entry for uid without removing it.
func (s *Store) Get(_ context.Context, uid string) (*pending.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, chatrelay.ErrStoreClosed
	}

	e, ok := s.entries[uid]
	if !ok {
		return nil, pending.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Resolve removes and returns the entry for uid.
func (s *Store) Resolve(_ context.Context, uid string) (*pending.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, chatrelay.ErrStoreClosed
	}

	e, ok := s.entries[uid]
	if !ok {
		return nil, pending.ErrNotFound
	}
	delete(s.entries, uid)
	return e, nil
}

// Expire removes and returns up to limit entries submitted before the given
// time, oldest first.
func (s *Store) Expire(_ context.Context, before time.Time, limit int) ([]*pending.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, chatrelay.ErrStoreClosed
	}

	var expired []*pending.Entry
	for _, e := range s.entries {
		if e.SubmittedAt.Before(before) {
			expired = append(expired, e)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].SubmittedAt.Before(expired[j].SubmittedAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, e := range expired {
		delete(s.entries, e.UID)
	}
	return expired, nil
}

// CountPending returns the number of tracked entries.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, chatrelay.ErrStoreClosed
	}
	return int64(len(s.entries)), nil
}
