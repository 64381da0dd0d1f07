package redis

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "chatrelay:"

// Key layout, relative to the store's prefix.
const (
	prefixPending = "pend:"  // + uid -> JSON entry
	zPending      = "z:pend" // uid scored by submittedAt
)

// entityKey returns the primary key for a pending entry.
func (s *Store) entityKey(uid string) string {
	return s.prefix + prefixPending + uid
}

// indexKey returns the sorted set key indexing pending entries.
func (s *Store) indexKey() string {
	return s.prefix + zPending
}
