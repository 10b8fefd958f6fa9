package processing

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"wabridge/internal/backend"
	"wabridge/internal/models"
	"wabridge/internal/whatsapp"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func textMessage(id, sender, body string) *models.InboundMessage {
	return &models.InboundMessage{
		DeliveryID:  id,
		Sender:      sender,
		MessageType: whatsapp.TypeText,
		Body:        body,
	}
}

func newTestConversation(deployment string, maintenance bool) (*Conversation, *backend.MockClient, *whatsapp.MockSender) {
	bc := backend.NewMockClient()
	sender := whatsapp.NewMockSender(testLogger())
	conv := NewConversation(testLogger(), bc, sender, 3*time.Hour, deployment, maintenance)
	return conv, bc, sender
}

func lastSent(t *testing.T, sender *whatsapp.MockSender) whatsapp.MockSent {
	t.Helper()
	sent := sender.SentMessages()
	if len(sent) == 0 {
		t.Fatal("no messages were sent")
	}
	return sent[len(sent)-1]
}

func TestHandleTextRepliesWithBackendResponse(t *testing.T) {
	conv, bc, sender := newTestConversation("production", false)
	bc.Reply = "A considered answer."

	if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "a question")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	msg := lastSent(t, sender)
	if msg.Recipient != "1555" {
		t.Errorf("recipient = %q, want 1555", msg.Recipient)
	}
	if msg.Body != "A considered answer." {
		t.Errorf("body = %q", msg.Body)
	}
}

func TestHandleRegistersNewUser(t *testing.T) {
	conv, bc, _ := newTestConversation("production", false)

	if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "السلام عليكم ورحمة الله")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	exists, _ := bc.UserExists(context.Background(), "1555")
	if !exists {
		t.Error("user was not registered")
	}
}

func TestHandleFormatsMarkdownReply(t *testing.T) {
	conv, bc, sender := newTestConversation("production", false)
	bc.Reply = "This is **bold** advice."

	if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "q")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if got := lastSent(t, sender).Body; got != "This is *bold* advice." {
		t.Errorf("body = %q, want WhatsApp bold syntax", got)
	}
}

func TestHandleEmptyBackendResponse(t *testing.T) {
	// The check runs on the formatted text, so a response that is blank
	// once formatting has nothing to keep still gets the fallback.
	cases := []struct {
		name  string
		reply string
	}{
		{"spaces", "   "},
		{"blank lines", "\n\n  \n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conv, bc, sender := newTestConversation("production", false)
			bc.Reply = tc.reply

			if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "q")); err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if got := lastSent(t, sender).Body; got != replyEmpty {
				t.Errorf("body = %q, want the empty-response fallback", got)
			}
		})
	}
}

func TestHandleLocationUpdatesAndConfirms(t *testing.T) {
	conv, _, sender := newTestConversation("production", false)

	msg := &models.InboundMessage{
		DeliveryID:  "wamid.loc",
		Sender:      "1555",
		MessageType: whatsapp.TypeLocation,
		Latitude:    21.4225,
		Longitude:   39.8262,
	}
	if err := conv.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if got := lastSent(t, sender).Body; got != replyLocation {
		t.Errorf("body = %q, want the location acknowledgement", got)
	}
}

func TestHandleUnsupportedType(t *testing.T) {
	conv, _, sender := newTestConversation("production", false)

	msg := &models.InboundMessage{
		DeliveryID:  "wamid.v",
		Sender:      "1555",
		MessageType: whatsapp.TypeErrors,
	}
	if err := conv.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if got := lastSent(t, sender).Body; got != replyUnsupported {
		t.Errorf("body = %q, want the unsupported-type reply", got)
	}
}

func TestHandleMaintenanceMode(t *testing.T) {
	conv, _, sender := newTestConversation("production", true)

	if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "q")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if got := lastSent(t, sender).Body; got != replyMaintenance {
		t.Errorf("body = %q, want the maintenance notice", got)
	}
}

func TestHandleStagingRouting(t *testing.T) {
	t.Run("staging ignores unprefixed messages", func(t *testing.T) {
		conv, _, sender := newTestConversation("staging", false)
		if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "hello")); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if n := len(sender.SentMessages()); n != 0 {
			t.Errorf("sent %d messages, want 0", n)
		}
	})

	t.Run("staging strips the prefix and processes", func(t *testing.T) {
		conv, bc, sender := newTestConversation("staging", false)
		bc.Reply = "staging reply"
		if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "!d hello")); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if got := lastSent(t, sender).Body; got != "staging reply" {
			t.Errorf("body = %q", got)
		}
	})

	t.Run("production ignores prefixed messages", func(t *testing.T) {
		conv, _, sender := newTestConversation("production", false)
		if err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "!d hello")); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
		if n := len(sender.SentMessages()); n != 0 {
			t.Errorf("sent %d messages, want 0", n)
		}
	})
}

func TestSelectThreadReusesRecent(t *testing.T) {
	conv, bc, _ := newTestConversation("production", false)
	ctx := context.Background()

	// First turn creates a thread.
	if err := conv.Handle(ctx, textMessage("wamid.1", "1555", "first question")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	info, _ := bc.LastThreadInfo(ctx, "1555")
	if info.ThreadID == "" {
		t.Fatal("no thread was created")
	}
	first := info.ThreadID

	// A prompt follow-up stays on the same thread.
	if err := conv.Handle(ctx, textMessage("wamid.2", "1555", "follow-up")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	info, _ = bc.LastThreadInfo(ctx, "1555")
	if info.ThreadID != first {
		t.Errorf("thread changed to %q, want %q", info.ThreadID, first)
	}
}

func TestSelectThreadStartsFreshPastRetention(t *testing.T) {
	conv, bc, _ := newTestConversation("production", false)
	ctx := context.Background()

	if err := conv.Handle(ctx, textMessage("wamid.1", "1555", "first question")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	info, _ := bc.LastThreadInfo(ctx, "1555")
	first := info.ThreadID

	// Backdate the thread past the retention window.
	bc.SetThreadLastMessageTime(first, time.Now().Add(-4*time.Hour))

	if err := conv.Handle(ctx, textMessage("wamid.2", "1555", "much later")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	info, _ = bc.LastThreadInfo(ctx, "1555")
	if info.ThreadID == first {
		t.Error("stale thread was reused, want a new one")
	}
}

func TestNewThreadTitledWithLeadingWords(t *testing.T) {
	conv, bc, _ := newTestConversation("production", false)
	ctx := context.Background()

	if err := conv.Handle(ctx, textMessage("wamid.1", "1555", "What breaks the fast during Ramadan exactly?")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	info, _ := bc.LastThreadInfo(ctx, "1555")
	if info.ThreadID == "" {
		t.Fatal("no thread was created")
	}
	if got := bc.ThreadTitle(info.ThreadID); got != "What breaks the fast during Ramadan" {
		t.Errorf("thread title = %q, want the first six words of the message", got)
	}
}

func TestThreadTitle(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"short message kept whole", "When is Eid?", "When is Eid?"},
		{"long message truncated", "please tell me about the five pillars of Islam", "please tell me about the five"},
		{"extra whitespace collapsed", "  what \n counts  as  zakat wealth then ", "what counts as zakat wealth then"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := threadTitle(tc.body); got != tc.want {
				t.Errorf("threadTitle(%q) = %q, want %q", tc.body, got, tc.want)
			}
		})
	}
}

func TestHandlePropagatesBackendFailure(t *testing.T) {
	conv, bc, _ := newTestConversation("production", false)
	bc.FailProcess = true

	err := conv.Handle(context.Background(), textMessage("wamid.1", "1555", "q"))
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !strings.Contains(err.Error(), "message processing failed") {
		t.Errorf("err = %v, want a processing error", err)
	}
}
