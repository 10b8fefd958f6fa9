package store

import (
	"context"
	"time"
)

// Entry statuses. PENDING is written by the gateway; the worker moves entries
// through PROCESSING to a terminal SUCCEEDED or FAILED.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSucceeded  = "SUCCEEDED"
	StatusFailed     = "FAILED"
)

// Entry is one idempotency ledger record, keyed by the vendor delivery ID.
// Payload holds the serialized inbound message so the reconciler can
// re-enqueue entries whose queue publish was lost.
type Entry struct {
	DeliveryID  string
	Sender      string
	MessageType string
	Status      string
	Attempts    int
	LastError   string
	Payload     []byte
	FirstSeenAt time.Time
	UpdatedAt   time.Time
}

// Store is the idempotency ledger shared by all gateway and worker instances.
type Store interface {
	// InsertPending records a delivery as PENDING. It reports false when the
	// delivery ID is already present: the first writer wins and the caller
	// must drop the event without side effects.
	InsertPending(ctx context.Context, e Entry) (bool, error)

	// ClaimForProcessing moves an entry from PENDING, or from a PROCESSING
	// claim idle for longer than staleAfter, to PROCESSING, incrementing the
	// attempt counter. Entries whose attempts exceed maxAttempts are flipped
	// to FAILED instead. The boolean reports whether this call won the
	// claim; when false the returned entry (nil if absent) is the observed
	// state and the caller must not process it. A live PROCESSING claim held
	// by another worker is never handed out a second time.
	ClaimForProcessing(ctx context.Context, deliveryID string, maxAttempts int, staleAfter time.Duration) (*Entry, bool, error)

	// MarkSucceeded records a terminal success for the delivery.
	MarkSucceeded(ctx context.Context, deliveryID string) error

	// MarkFailed records a terminal failure with a reason.
	MarkFailed(ctx context.Context, deliveryID string, reason string) error

	// ReclaimStuck resets up to limit entries back to PENDING and returns
	// them for the reconciliation sweep to re-enqueue. It covers entries
	// still PENDING after olderThan (a lost queue publish) and PROCESSING
	// claims idle for that long (a worker that died or an acknowledgement
	// path that cannot redeliver). Resetting bumps updated_at so the same
	// entry is not reclaimed again before the next window passes.
	ReclaimStuck(ctx context.Context, olderThan time.Duration, limit int) ([]Entry, error)

	// PurgeOlderThan deletes entries first seen more than age ago and returns
	// the number removed. Retention is a tunable, not a correctness concern.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// Close releases the underlying connections.
	Close()
}
