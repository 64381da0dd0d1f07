// Package registry holds the set of live connections keyed by identity.
//
// A Registry is the only way any other component reaches the connection set.
// Structural changes take the write lock; lookups and broadcast snapshots
// take the read lock. Sends always happen outside the lock so a slow or
// failing channel never blocks registration.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIdentityNotFound is returned when an identity is not registered.
var ErrIdentityNotFound = errors.New("chatrelay: identity not found")

// Channel is the send side of one live duplex channel.
type Channel interface {
	// Send queues payload for delivery. It must not block on the peer.
	Send(payload []byte) error

	// Close terminates the channel with a human-readable reason.
	Close(reason string) error
}

// Connection binds an identity to the channel that registered it. Two
// connections with the same UserName are the same registry entry.
type Connection struct {
	UserName string
	Channel  Channel
}

// Registry is a concurrency-safe map from identity to Connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]Connection)}
}

// Insert adds or replaces the entry for c.UserName. When an entry bound to a
// different channel is replaced, it is returned with replaced set to true.
func (r *Registry) Insert(c Connection) (prev Connection, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.conns[c.UserName]
	r.conns[c.UserName] = c
	if ok && old.Channel != c.Channel {
		return old, true
	}
	return Connection{}, false
}

// Remove deletes and returns the entry for userName.
func (r *Registry) Remove(userName string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[userName]
	if !ok {
		return Connection{}, ErrIdentityNotFound
	}
	delete(r.conns, userName)
	return c, nil
}

// Release removes whichever identity is currently bound to ch. The lookup
// by handle and the removal by identity happen under one lock, so an entry
// that was re-registered on another channel is left alone.
func (r *Registry) Release(ch Channel) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, c := range r.conns {
		if c.Channel == ch {
			delete(r.conns, name)
			return c, nil
		}
	}
	return Connection{}, ErrIdentityNotFound
}

// Lookup returns the entry for userName.
func (r *Registry) Lookup(userName string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userName]
	return c, ok
}

// Snapshot returns a copy of the current entries in no particular order.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast sends payload to every connection registered at the moment of
// the call. Each send is independent; failures are joined into the returned
// error and never stop delivery to the rest. attempted is the number of
// sends made.
func (r *Registry) Broadcast(payload []byte) (attempted int, err error) {
	targets := r.Snapshot()

	var errs []error
	for _, c := range targets {
		if sendErr := c.Channel.Send(payload); sendErr != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", c.UserName, sendErr))
		}
	}
	return len(targets), errors.Join(errs...)
}

// SendTo sends payload to a single identity.
func (r *Registry) SendTo(userName string, payload []byte) error {
	c, ok := r.Lookup(userName)
	if !ok {
		return ErrIdentityNotFound
	}
	if err := c.Channel.Send(payload); err != nil {
		return fmt.Errorf("send to %s: %w", userName, err)
	}
	return nil
}

// CloseAll removes every entry and closes its channel.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Channel.Close(reason) //nolint:errcheck // best effort
	}
}
