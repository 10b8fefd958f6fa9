package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	core "wabridge/gateway/service/core"
	"wabridge/internal/messaging/producer"
	"wabridge/storage/dedup"
	"wabridge/storage/store"
)

// nopStore accepts every insert. Handler tests only care about HTTP behavior.
type nopStore struct{}

func (nopStore) InsertPending(ctx context.Context, e store.Entry) (bool, error) {
	return true, nil
}
func (nopStore) ClaimForProcessing(ctx context.Context, deliveryID string, maxAttempts int, staleAfter time.Duration) (*store.Entry, bool, error) {
	return nil, false, nil
}
func (nopStore) MarkSucceeded(ctx context.Context, deliveryID string) error      { return nil }
func (nopStore) MarkFailed(ctx context.Context, deliveryID, reason string) error { return nil }
func (nopStore) ReclaimStuck(ctx context.Context, olderThan time.Duration, limit int) ([]store.Entry, error) {
	return nil, nil
}
func (nopStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return 0, nil
}
func (nopStore) Close() {}

func newTestHandler(t *testing.T) *WebhookHandler {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	svc := core.NewService(logger, producer.NewMockProducer(logger), nopStore{}, dedup.NopCache{}, "42", 24*time.Hour)
	return NewWebhookHandler(svc, logger, "secret-token", 5*time.Second)
}

func TestVerifyWebhookEchoesChallenge(t *testing.T) {
	h := newTestHandler(t)

	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", "secret-token")
	q.Set("hub.challenge", "challenge-1234")

	req := httptest.NewRequest(http.MethodGet, "/whatsapp/v1?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.VerifyWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "challenge-1234" {
		t.Errorf("body = %q, want the raw challenge", body)
	}
}

func TestVerifyWebhookRejectsBadToken(t *testing.T) {
	h := newTestHandler(t)

	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", "wrong")
	q.Set("hub.challenge", "challenge-1234")

	req := httptest.NewRequest(http.MethodGet, "/whatsapp/v1?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.VerifyWebhook(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestVerifyWebhookRejectsMissingParams(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/whatsapp/v1", nil)
	rec := httptest.NewRecorder()
	h.VerifyWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReceiveWebhookAlwaysAcknowledges(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "valid message",
			body: `{
				"object": "whatsapp_business_account",
				"entry": [{"changes": [{"value": {
					"metadata": {"phone_number_id": "42"},
					"messages": [{"id": "wamid.h1", "from": "1555", "type": "text", "text": {"body": "hi"}}]
				}}]}]
			}`,
			want: "accepted",
		},
		{name: "garbage body", body: `not even json`, want: "ignored"},
		{name: "empty body", body: ``, want: "ignored"},
		{
			name: "status receipt",
			body: `{
				"object": "whatsapp_business_account",
				"entry": [{"changes": [{"value": {
					"metadata": {"phone_number_id": "42"},
					"statuses": [{"id": "wamid.s", "status": "delivered"}]
				}}]}]
			}`,
			want: "ignored",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/whatsapp/v1", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ReceiveWebhook(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 no matter what", rec.Code)
			}

			var resp struct {
				Status string `json:"status"`
				Result string `json:"result"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if resp.Status != "ok" {
				t.Errorf("status field = %q, want ok", resp.Status)
			}
			if resp.Result != tc.want {
				t.Errorf("result = %q, want %q", resp.Result, tc.want)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}
