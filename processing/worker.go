// Package processing contains the deferred processor: a worker pool that
// drains the handoff queue, claims deliveries in the ledger, and runs a
// conversation turn per message. The gateway has already acknowledged the
// webhook by the time work lands here.
package processing

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"wabridge/config"
	"wabridge/internal/messaging/consumer"
	"wabridge/internal/models"
	"wabridge/storage/store"
)

// Worker processes queued messages one at a time per goroutine.
type Worker struct {
	processTimeout     time.Duration // Parsed from cfg.Processing.ProcessTimeout
	consumerRetryDelay time.Duration // Parsed from cfg.Processing.ConsumerRetryDelay
	concurrency        int
	maxTaskRetries     int

	logger       *log.Logger
	store        store.Store
	consumer     consumer.Consumer
	conversation *Conversation
}

// New creates a new Worker instance
func New(cfg *config.WorkerConfig, logger *log.Logger, s store.Store, c consumer.Consumer, conv *Conversation) *Worker {
	processTimeout, err := time.ParseDuration(cfg.Processing.ProcessTimeout)
	if err != nil {
		logger.Printf("Warning: Invalid process_timeout '%s', using default 5m", cfg.Processing.ProcessTimeout)
		processTimeout = 5 * time.Minute
	}

	consumerRetryDelay, err := time.ParseDuration(cfg.Processing.ConsumerRetryDelay)
	if err != nil {
		logger.Printf("Warning: Invalid consumer_retry_delay '%s', using default 5s", cfg.Processing.ConsumerRetryDelay)
		consumerRetryDelay = 5 * time.Second
	}

	return &Worker{
		processTimeout:     processTimeout,
		consumerRetryDelay: consumerRetryDelay,
		concurrency:        cfg.Processing.Concurrency,
		maxTaskRetries:     cfg.MaxTaskRetries,
		logger:             logger,
		store:              s,
		consumer:           c,
		conversation:       conv,
	}
}

// Run starts the worker pool and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Printf("Starting worker pool with concurrency: %d, process timeout: %s",
		w.concurrency, w.processTimeout)
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.logger.Printf("Worker %d started", workerID)
			w.consumeLoop(ctx, workerID)
			w.logger.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}
	wg.Wait()
	w.logger.Println("Worker pool stopped.")
}

// consumeLoop is the main loop for a worker goroutine.
func (w *Worker) consumeLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("Worker %d: Context cancelled, stopping.", workerID)
			return
		default:
		}

		consumeCtx, consumeCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		msg, ack, err := w.consumer.Consume(consumeCtx)
		consumeCancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Printf("Worker %d: Consumer error: %v", workerID, err)
			time.Sleep(w.consumerRetryDelay)
			continue
		}
		if msg == nil {
			continue
		}

		w.processAndAck(ctx, workerID, msg, ack)
	}
}

// processAndAck runs one message through the ledger claim and the
// conversation, then acknowledges the queue accordingly.
func (w *Worker) processAndAck(ctx context.Context, workerID int, msg *models.InboundMessage, ack func(success bool)) {
	entry, claimed, err := w.store.ClaimForProcessing(ctx, msg.DeliveryID, w.maxTaskRetries, w.processTimeout)
	if err != nil {
		w.logger.Printf("Worker %d: Ledger claim failed for %s: %v", workerID, msg.DeliveryID, err)
		tasksRetried.Inc()
		ack(false)
		return
	}

	if !claimed {
		if entry == nil {
			// The queue delivered a message the ledger never saw. The
			// gateway writes the ledger before publishing, so this only
			// happens when the entry was purged or the message was
			// injected directly. Process it; there is nothing to mark.
			w.logger.Printf("Worker %d: No ledger entry for %s, processing without claim", workerID, msg.DeliveryID)
			if err := w.runConversation(ctx, msg); err != nil {
				w.logger.Printf("Worker %d: Processing failed for unledgered %s: %v", workerID, msg.DeliveryID, err)
				tasksRetried.Inc()
				ack(false)
				return
			}
			tasksSucceeded.Inc()
			ack(true)
			return
		}

		if entry.Status == store.StatusProcessing {
			// Another worker holds a live claim on this delivery. Drop the
			// duplicate; if that worker dies the reconciler sweep puts the
			// entry back in the queue.
			w.logger.Printf("Worker %d: Delivery %s claimed elsewhere, dropping duplicate", workerID, msg.DeliveryID)
			tasksDroppedInFlight.Inc()
			ack(true)
			return
		}

		// Terminal (or just-reset PENDING): a redelivery of finished work.
		// Drop it without side effects.
		w.logger.Printf("Worker %d: Delivery %s already %s, dropping redelivery", workerID, msg.DeliveryID, entry.Status)
		tasksDroppedTerminal.Inc()
		ack(true)
		return
	}

	if entry.Status == store.StatusFailed {
		// The claim flipped it to FAILED: attempt budget exhausted.
		w.logger.Printf("Worker %d: Delivery %s exhausted %d attempts, dropping", workerID, msg.DeliveryID, w.maxTaskRetries)
		tasksExhausted.Inc()
		w.conversation.ReplyError(ctx, msg.Sender)
		ack(true)
		return
	}

	if err := w.runConversation(ctx, msg); err != nil {
		// Leave the entry in PROCESSING and nack. Brokers with per-message
		// redelivery bring it back directly; for the rest the reconciler
		// sweep reclaims the stale claim and re-enqueues it. Either path
		// goes through the claim again, so the attempt budget still caps
		// the retries.
		w.logger.Printf("Worker %d: Processing failed for %s (attempt %d/%d): %v",
			workerID, msg.DeliveryID, entry.Attempts, w.maxTaskRetries, err)
		tasksRetried.Inc()
		ack(false)
		return
	}

	if err := w.store.MarkSucceeded(ctx, msg.DeliveryID); err != nil {
		// The reply already went out. Ack anyway: retrying would send the
		// user a duplicate answer, which is worse than a stale ledger row.
		w.logger.Printf("Worker %d: MarkSucceeded failed for %s: %v", workerID, msg.DeliveryID, err)
	}
	tasksSucceeded.Inc()
	ack(true)
}

func (w *Worker) runConversation(ctx context.Context, msg *models.InboundMessage) error {
	procCtx, cancel := context.WithTimeout(ctx, w.processTimeout)
	defer cancel()

	start := time.Now()
	err := w.conversation.Handle(procCtx, msg)
	conversationDuration.Observe(time.Since(start).Seconds())
	return err
}
