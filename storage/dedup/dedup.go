// Package dedup provides a fast first-pass duplicate filter in front of the
// authoritative ledger. A negative answer here is never trusted on its own:
// the ledger's insert-if-absent remains the source of truth.
package dedup

import "context"

// Cache is the first-pass duplicate filter.
type Cache interface {
	// FirstSeen atomically claims the delivery ID. It reports true when this
	// caller is the first to see the ID within the TTL window, false when
	// the ID was already claimed. Implementations fail open: on backend
	// errors they return true and let the ledger decide.
	FirstSeen(ctx context.Context, deliveryID string) bool

	// Release drops a claim made by FirstSeen. Callers use it when the
	// ledger insert behind a claim fails, so a redelivery of the same ID is
	// not answered from a cache entry the ledger never backed. Best effort:
	// a failed release only shortens to the TTL what would otherwise be
	// immediate.
	Release(ctx context.Context, deliveryID string)

	// Close releases the underlying connection.
	Close() error
}
