package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"wabridge/internal/messaging/producer"
	"wabridge/storage/dedup"
	"wabridge/storage/store"
)

// memStore is an in-memory Store with first-writer-wins inserts.
type memStore struct {
	mu      sync.Mutex
	entries map[string]store.Entry

	// InsertErr forces InsertPending to fail.
	InsertErr error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]store.Entry)}
}

func (m *memStore) InsertPending(ctx context.Context, e store.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return false, m.InsertErr
	}
	if _, exists := m.entries[e.DeliveryID]; exists {
		return false, nil
	}
	e.Status = store.StatusPending
	m.entries[e.DeliveryID] = e
	return true, nil
}

func (m *memStore) ClaimForProcessing(ctx context.Context, deliveryID string, maxAttempts int, staleAfter time.Duration) (*store.Entry, bool, error) {
	return nil, false, errors.New("not used in gateway tests")
}
func (m *memStore) MarkSucceeded(ctx context.Context, deliveryID string) error { return nil }
func (m *memStore) MarkFailed(ctx context.Context, deliveryID, reason string) error {
	return nil
}
func (m *memStore) ReclaimStuck(ctx context.Context, olderThan time.Duration, limit int) ([]store.Entry, error) {
	return nil, nil
}
func (m *memStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return 0, nil
}
func (m *memStore) Close() {}

var _ store.Store = (*memStore)(nil)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func webhookBody(messageID string) []byte {
	return webhookBodyAt(messageID, time.Now().Unix())
}

func webhookBodyAt(messageID string, sentUnix int64) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"phone_number_id": "42"},
					"messages": [{
						"id": %q,
						"from": "15551234567",
						"timestamp": "%d",
						"type": "text",
						"text": {"body": "hello"}
					}]
				}
			}]
		}]
	}`, messageID, sentUnix))
}

func newTestService(t *testing.T) (*Service, *memStore, *producer.MockProducer) {
	t.Helper()
	s := newMemStore()
	p := producer.NewMockProducer(testLogger())
	svc := NewService(testLogger(), p, s, dedup.NopCache{}, "42", 24*time.Hour)
	return svc, s, p
}

func TestAcceptRecordsAndPublishes(t *testing.T) {
	svc, s, p := newTestService(t)

	decision := svc.Accept(context.Background(), webhookBody("wamid.1"))
	if decision != DecisionAccepted {
		t.Fatalf("decision = %s, want accepted", decision)
	}

	if _, ok := s.entries["wamid.1"]; !ok {
		t.Error("ledger entry was not written")
	}
	published := p.Published()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].DeliveryID != "wamid.1" {
		t.Errorf("published DeliveryID = %q, want wamid.1", published[0].DeliveryID)
	}
	if published[0].Body != "hello" {
		t.Errorf("published Body = %q, want hello", published[0].Body)
	}
}

func TestAcceptDropsLedgerDuplicate(t *testing.T) {
	svc, _, p := newTestService(t)

	if d := svc.Accept(context.Background(), webhookBody("wamid.dup")); d != DecisionAccepted {
		t.Fatalf("first delivery: decision = %s, want accepted", d)
	}
	if d := svc.Accept(context.Background(), webhookBody("wamid.dup")); d != DecisionDuplicate {
		t.Fatalf("second delivery: decision = %s, want duplicate", d)
	}
	if n := len(p.Published()); n != 1 {
		t.Errorf("published %d messages, want 1", n)
	}
}

// fakeCache treats every ID as already seen.
type fakeCache struct{}

func (fakeCache) FirstSeen(ctx context.Context, deliveryID string) bool { return false }
func (fakeCache) Release(ctx context.Context, deliveryID string)        {}
func (fakeCache) Close() error                                          { return nil }

func TestAcceptDropsCacheDuplicate(t *testing.T) {
	s := newMemStore()
	p := producer.NewMockProducer(testLogger())
	svc := NewService(testLogger(), p, s, fakeCache{}, "42", 24*time.Hour)

	if d := svc.Accept(context.Background(), webhookBody("wamid.cached")); d != DecisionDuplicate {
		t.Fatalf("decision = %s, want duplicate", d)
	}
	if len(s.entries) != 0 {
		t.Error("cache duplicate must not reach the ledger")
	}
}

func TestAcceptDropsStale(t *testing.T) {
	svc, s, _ := newTestService(t)

	old := time.Now().Add(-48 * time.Hour).Unix()
	if d := svc.Accept(context.Background(), webhookBodyAt("wamid.old", old)); d != DecisionStale {
		t.Fatalf("decision = %s, want stale", d)
	}
	if len(s.entries) != 0 {
		t.Error("stale message must not reach the ledger")
	}
}

func TestAcceptIgnoresNonMessages(t *testing.T) {
	svc, _, p := newTestService(t)

	cases := []struct {
		name string
		body string
	}{
		{"garbage", `{{{`},
		{"status receipt", `{
			"object": "whatsapp_business_account",
			"entry": [{"changes": [{"value": {
				"metadata": {"phone_number_id": "42"},
				"statuses": [{"id": "wamid.s", "status": "read"}]
			}}]}]
		}`},
		{"other number", `{
			"object": "whatsapp_business_account",
			"entry": [{"changes": [{"value": {
				"metadata": {"phone_number_id": "99"},
				"messages": [{"id": "wamid.o", "from": "1555", "type": "text", "text": {"body": "x"}}]
			}}]}]
		}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if d := svc.Accept(context.Background(), []byte(tc.body)); d != DecisionIgnored {
				t.Errorf("decision = %s, want ignored", d)
			}
		})
	}
	if n := len(p.Published()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
}

func TestAcceptPublishFailureStillAccepted(t *testing.T) {
	s := newMemStore()
	p := producer.NewMockProducer(testLogger())
	p.FailPublish = errors.New("broker down")
	svc := NewService(testLogger(), p, s, dedup.NopCache{}, "42", 24*time.Hour)

	// The ledger row exists, so the reconciler can re-enqueue later. The
	// webhook must still count as accepted.
	if d := svc.Accept(context.Background(), webhookBody("wamid.pub")); d != DecisionAccepted {
		t.Fatalf("decision = %s, want accepted despite publish failure", d)
	}
	if _, ok := s.entries["wamid.pub"]; !ok {
		t.Error("ledger entry missing after publish failure")
	}
}

func TestAcceptLedgerDownIsIgnored(t *testing.T) {
	s := newMemStore()
	s.InsertErr = errors.New("connection refused")
	p := producer.NewMockProducer(testLogger())
	svc := NewService(testLogger(), p, s, dedup.NopCache{}, "42", 24*time.Hour)

	if d := svc.Accept(context.Background(), webhookBody("wamid.db")); d != DecisionIgnored {
		t.Fatalf("decision = %s, want ignored", d)
	}
	if n := len(p.Published()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
}

// claimCache is a real first-writer-wins filter with release support.
type claimCache struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
}

func newClaimCache() *claimCache {
	return &claimCache{seen: make(map[string]bool)}
}

func (c *claimCache) FirstSeen(ctx context.Context, deliveryID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[deliveryID] {
		return false
	}
	c.seen[deliveryID] = true
	return true
}

func (c *claimCache) Release(ctx context.Context, deliveryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, deliveryID)
	c.released = append(c.released, deliveryID)
}

func (c *claimCache) Close() error { return nil }

func TestAcceptLedgerDownReleasesCacheClaim(t *testing.T) {
	s := newMemStore()
	s.InsertErr = errors.New("connection refused")
	p := producer.NewMockProducer(testLogger())
	cache := newClaimCache()
	svc := NewService(testLogger(), p, s, cache, "42", 24*time.Hour)

	if d := svc.Accept(context.Background(), webhookBody("wamid.outage")); d != DecisionIgnored {
		t.Fatalf("decision = %s, want ignored", d)
	}
	if len(cache.released) != 1 || cache.released[0] != "wamid.outage" {
		t.Fatalf("released = %v, want the failed delivery's claim given back", cache.released)
	}

	// The ledger recovers and the upstream re-sends. Without the release
	// the cache would answer duplicate for a message never recorded.
	s.InsertErr = nil
	if d := svc.Accept(context.Background(), webhookBody("wamid.outage")); d != DecisionAccepted {
		t.Fatalf("redelivery decision = %s, want accepted", d)
	}
	if _, ok := s.entries["wamid.outage"]; !ok {
		t.Error("ledger entry missing after redelivery")
	}
}

func TestAcceptConcurrentSameDelivery(t *testing.T) {
	svc, s, p := newTestService(t)
	body := webhookBody("wamid.race")

	const n = 32
	decisions := make([]Decision, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i] = svc.Accept(context.Background(), body)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, d := range decisions {
		if d == DecisionAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("accepted %d times, want exactly 1", accepted)
	}
	if len(s.entries) != 1 {
		t.Errorf("ledger has %d entries, want 1", len(s.entries))
	}
	if n := len(p.Published()); n != 1 {
		t.Errorf("published %d messages, want 1", n)
	}
}
