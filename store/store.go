// Package store defines the composite Store interface for relay persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them. The relay keeps only transient bookkeeping, so today that
// is the pending-confirmation table.
package store

import (
	"context"

	"github.com/xraph/chatrelay/pending"
)

// Store is the aggregate persistence interface.
type Store interface {
	pending.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
