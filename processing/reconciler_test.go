package processing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"wabridge/config"
	"wabridge/internal/messaging/producer"
	"wabridge/internal/models"
	"wabridge/storage/store"
)

func newTestReconciler(s store.Store) (*Reconciler, *producer.MockProducer) {
	p := producer.NewMockProducer(testLogger())
	cfg := config.ReconcilerConfig{
		Interval:   time.Minute,
		Grace:      2 * time.Minute,
		BatchLimit: 100,
		PurgeAge:   25 * time.Hour,
	}
	return NewReconciler(cfg, testLogger(), s, p), p
}

func stuckEntry(t *testing.T, deliveryID string) store.Entry {
	t.Helper()
	payload, err := json.Marshal(models.InboundMessage{
		DeliveryID:  deliveryID,
		Sender:      "1555",
		MessageType: "text",
		Body:        "stuck question",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return store.Entry{DeliveryID: deliveryID, Status: store.StatusPending, Payload: payload}
}

func TestSweepRequeuesStuckEntries(t *testing.T) {
	s := &mockStore{
		ReclaimFunc: func(ctx context.Context, olderThan time.Duration, limit int) ([]store.Entry, error) {
			return []store.Entry{stuckEntry(t, "wamid.stuck1"), stuckEntry(t, "wamid.stuck2")}, nil
		},
	}
	r, p := newTestReconciler(s)

	r.sweep(context.Background())

	published := p.Published()
	if len(published) != 2 {
		t.Fatalf("published %d messages, want 2", len(published))
	}
	if published[0].DeliveryID != "wamid.stuck1" || published[1].DeliveryID != "wamid.stuck2" {
		t.Errorf("published = %v", published)
	}
	if published[0].Body != "stuck question" {
		t.Errorf("payload body = %q, want the original message body", published[0].Body)
	}
}

func TestSweepMarksUnusablePayloadFailed(t *testing.T) {
	s := &mockStore{
		ReclaimFunc: func(ctx context.Context, olderThan time.Duration, limit int) ([]store.Entry, error) {
			return []store.Entry{
				{DeliveryID: "wamid.nopayload", Status: store.StatusPending},
				{DeliveryID: "wamid.badjson", Status: store.StatusPending, Payload: []byte(`{{`)},
			}, nil
		},
	}
	r, p := newTestReconciler(s)

	r.sweep(context.Background())

	if n := len(p.Published()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
	if len(s.failed) != 2 {
		t.Errorf("failed = %v, want both entries marked", s.failed)
	}
}

func TestSweepPurges(t *testing.T) {
	var gotAge time.Duration
	s := &mockStore{
		PurgeFunc: func(ctx context.Context, age time.Duration) (int64, error) {
			gotAge = age
			return 7, nil
		},
	}
	r, _ := newTestReconciler(s)

	r.sweep(context.Background())

	if gotAge != 25*time.Hour {
		t.Errorf("purge age = %v, want 25h", gotAge)
	}
}
