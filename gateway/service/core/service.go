// Package core implements the gateway's acceptance pipeline: parse the
// webhook, filter stale and duplicate deliveries, record the message in the
// ledger, and hand it to the queue. The HTTP layer always acknowledges the
// webhook regardless of the outcome here.
package core

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"wabridge/internal/messaging/producer"
	"wabridge/internal/models"
	"wabridge/internal/whatsapp"
	"wabridge/storage/dedup"
	"wabridge/storage/store"
)

// Decision classifies what the gateway did with a webhook body.
type Decision string

const (
	DecisionAccepted  Decision = "accepted"
	DecisionDuplicate Decision = "duplicate"
	DecisionStale     Decision = "stale"
	DecisionIgnored   Decision = "ignored"
)

// Service runs the acceptance pipeline.
type Service struct {
	logger   *log.Logger
	producer producer.Producer
	store    store.Store
	dedup    dedup.Cache

	businessPhoneNumberID string
	freshnessThreshold    time.Duration
	now                   func() time.Time
}

func NewService(logger *log.Logger, p producer.Producer, s store.Store, d dedup.Cache,
	businessPhoneNumberID string, freshnessThreshold time.Duration) *Service {
	return &Service{
		logger:                logger,
		producer:              p,
		store:                 s,
		dedup:                 d,
		businessPhoneNumberID: businessPhoneNumberID,
		freshnessThreshold:    freshnessThreshold,
		now:                   time.Now,
	}
}

// Accept processes one webhook POST body. It never returns an error to the
// HTTP layer: every outcome maps to a Decision and the webhook is always
// acknowledged upstream.
func (s *Service) Accept(ctx context.Context, body []byte) Decision {
	webhooksReceived.Inc()

	incoming, err := whatsapp.ParseWebhook(body, s.businessPhoneNumberID)
	if err != nil {
		switch err {
		case whatsapp.ErrStatusUpdate, whatsapp.ErrNotTargetNumber:
			// Expected traffic that carries no user message.
		default:
			parseFailures.Inc()
			s.logger.Printf("webhook parse failed: %v", err)
		}
		messagesIgnored.Inc()
		return DecisionIgnored
	}

	if TooOld(incoming.SentUnixTime, s.now(), s.freshnessThreshold) {
		messagesStale.Inc()
		s.logger.Printf("dropping stale message %s from %s (sent %s)",
			incoming.MessageID, incoming.Sender, time.Unix(incoming.SentUnixTime, 0).Format(time.RFC3339))
		return DecisionStale
	}

	// First-pass duplicate check. The cache is advisory: a cache miss or a
	// cache outage falls through to the ledger, which is authoritative.
	if !s.dedup.FirstSeen(ctx, incoming.MessageID) {
		messagesDuplicate.Inc()
		s.logger.Printf("dropping duplicate delivery %s (cache)", incoming.MessageID)
		return DecisionDuplicate
	}

	msg := models.InboundMessage{
		DeliveryID:   incoming.MessageID,
		Sender:       incoming.Sender,
		MessageType:  incoming.Type,
		Body:         incoming.Body,
		Latitude:     incoming.Latitude,
		Longitude:    incoming.Longitude,
		SentUnixTime: incoming.SentUnixTime,
		ReceivedAt:   s.now().UTC().Format(time.RFC3339Nano),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		messagesIgnored.Inc()
		s.logger.Printf("serialize message %s: %v", msg.DeliveryID, err)
		return DecisionIgnored
	}

	inserted, err := s.store.InsertPending(ctx, store.Entry{
		DeliveryID:  msg.DeliveryID,
		Sender:      msg.Sender,
		MessageType: msg.MessageType,
		Payload:     payload,
	})
	if err != nil {
		// The webhook is acknowledged regardless, so this delivery is
		// lost unless Meta re-sends it. Give the cache claim back so a
		// redelivery is not dropped as a duplicate of a message the
		// ledger never recorded.
		s.dedup.Release(ctx, msg.DeliveryID)
		messagesIgnored.Inc()
		s.logger.Printf("ledger insert failed for %s: %v", msg.DeliveryID, err)
		return DecisionIgnored
	}
	if !inserted {
		messagesDuplicate.Inc()
		s.logger.Printf("dropping duplicate delivery %s (ledger)", msg.DeliveryID)
		return DecisionDuplicate
	}

	if err := s.producer.Publish(ctx, &msg); err != nil {
		// Ledger row exists with status PENDING; the reconciler sweep
		// re-enqueues it. The message is accepted either way.
		publishFailures.Inc()
		s.logger.Printf("queue publish failed for %s: %v", msg.DeliveryID, err)
	}

	messagesAccepted.Inc()
	return DecisionAccepted
}
