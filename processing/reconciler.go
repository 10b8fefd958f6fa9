package processing

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"wabridge/config"
	"wabridge/internal/messaging/producer"
	"wabridge/internal/models"
	"wabridge/storage/store"
)

// Reconciler sweeps the ledger for deliveries that fell out of the queue.
// An entry still PENDING after the grace window lost its publish; a
// PROCESSING claim idle that long belongs to a worker that died or to a
// broker that cannot redeliver a nacked message. The sweep resets both back
// to PENDING, re-enqueues them from the stored payload, and purges entries
// past the retention window.
type Reconciler struct {
	logger   *log.Logger
	store    store.Store
	producer producer.Producer

	interval   time.Duration
	grace      time.Duration
	batchLimit int
	purgeAge   time.Duration
}

func NewReconciler(cfg config.ReconcilerConfig, logger *log.Logger, s store.Store, p producer.Producer) *Reconciler {
	return &Reconciler{
		logger:     logger,
		store:      s,
		producer:   p,
		interval:   cfg.Interval,
		grace:      cfg.Grace,
		batchLimit: cfg.BatchLimit,
		purgeAge:   cfg.PurgeAge,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Printf("Reconciler started (interval: %s, grace: %s, purge age: %s)", r.interval, r.grace, r.purgeAge)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Reconciler stopped.")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	entries, err := r.store.ReclaimStuck(ctx, r.grace, r.batchLimit)
	if err != nil {
		r.logger.Printf("Reconciler: failed to query stuck entries: %v", err)
		return
	}

	requeued := 0
	for _, e := range entries {
		var msg models.InboundMessage
		if err := json.Unmarshal(e.Payload, &msg); err != nil || msg.DeliveryID == "" {
			// Without a payload there is nothing to re-enqueue. Terminal.
			r.logger.Printf("Reconciler: entry %s has no usable payload, marking failed", e.DeliveryID)
			if markErr := r.store.MarkFailed(ctx, e.DeliveryID, "unrecoverable: no payload"); markErr != nil {
				r.logger.Printf("Reconciler: MarkFailed for %s: %v", e.DeliveryID, markErr)
			}
			continue
		}

		if err := r.producer.Publish(ctx, &msg); err != nil {
			// Leave it PENDING, the next sweep retries.
			r.logger.Printf("Reconciler: re-enqueue of %s failed: %v", e.DeliveryID, err)
			continue
		}
		requeued++
		reconcilerRequeued.Inc()
	}
	if requeued > 0 {
		r.logger.Printf("Reconciler: re-enqueued %d stuck deliveries", requeued)
	}

	purged, err := r.store.PurgeOlderThan(ctx, r.purgeAge)
	if err != nil {
		r.logger.Printf("Reconciler: purge failed: %v", err)
		return
	}
	if purged > 0 {
		reconcilerPurged.Add(float64(purged))
		r.logger.Printf("Reconciler: purged %d entries past retention", purged)
	}
}
