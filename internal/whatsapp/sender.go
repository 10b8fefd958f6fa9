package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"wabridge/config"
)

// Sender is the outbound channel back to the WhatsApp user.
type Sender interface {
	// SendMessage sends a text message, splitting it into parts under the
	// WhatsApp character limit when necessary.
	SendMessage(ctx context.Context, recipientPhone, body string) error

	// SendTypingIndicator marks the message as read and shows a typing
	// indicator to the user.
	SendTypingIndicator(ctx context.Context, recipientPhone, messageID string) error
}

// GraphSender sends messages through the Meta Graph API.
type GraphSender struct {
	messagesURL string
	accessToken string
	httpClient  *http.Client
	logger      *log.Logger
}

// NewGraphSender creates a Sender backed by the Meta Graph API.
func NewGraphSender(cfg config.MetaConfig, logger *log.Logger) (*GraphSender, error) {
	if cfg.BusinessPhoneNumberID == "" || cfg.AccessToken == "" {
		return nil, errors.New("meta configuration incomplete: both business_phone_number_id and access_token are required")
	}
	return &GraphSender{
		messagesURL: cfg.MessagesURL(),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}, nil
}

// SendMessage splits the body at the WhatsApp limit and posts each part in order.
func (s *GraphSender) SendMessage(ctx context.Context, recipientPhone, body string) error {
	if recipientPhone == "" {
		return errors.New("cannot send message: no recipient phone number")
	}
	if body == "" {
		s.logger.Println("Graph sender: empty message body, nothing to send")
		return nil
	}

	parts := SplitMessage(body)
	for i, part := range parts {
		payload := map[string]any{
			"messaging_product": "whatsapp",
			"to":                recipientPhone,
			"text":              map[string]string{"body": part},
		}
		if err := s.post(ctx, payload); err != nil {
			return fmt.Errorf("failed to send message part %d/%d: %w", i+1, len(parts), err)
		}
	}

	s.logger.Printf("Graph sender: sent %d message part(s) to %s", len(parts), recipientPhone)
	return nil
}

// SendTypingIndicator marks messageID as read and shows the typing indicator.
func (s *GraphSender) SendTypingIndicator(ctx context.Context, recipientPhone, messageID string) error {
	if recipientPhone == "" || messageID == "" {
		return errors.New("cannot send typing indicator: missing recipient phone or message ID")
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
		"typing_indicator":  map[string]string{"type": "text"},
	}
	return s.post(ctx, payload)
}

func (s *GraphSender) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize Graph API payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messagesURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build Graph API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Printf("Graph API error: HTTP %d: %s", resp.StatusCode, detail)
		return fmt.Errorf("Graph API returned HTTP %d", resp.StatusCode)
	}
	return nil
}

var _ Sender = (*GraphSender)(nil)

// MockSender records sent messages instead of calling the Graph API.
// Used by tests and local development without Meta credentials. The typing
// indicator loop runs on its own goroutine, so access is mutex-guarded.
type MockSender struct {
	logger *log.Logger

	mu               sync.Mutex
	sent             []MockSent
	typingIndicators []string // message IDs
}

// MockSent is one recorded SendMessage call.
type MockSent struct {
	Recipient string
	Body      string
}

// NewMockSender creates a MockSender.
func NewMockSender(logger *log.Logger) *MockSender {
	return &MockSender{logger: logger}
}

// SendMessage records the message.
func (m *MockSender) SendMessage(ctx context.Context, recipientPhone, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, MockSent{Recipient: recipientPhone, Body: body})
	m.mu.Unlock()
	m.logger.Printf("[MockSender] Message to %s: %.80s", recipientPhone, body)
	return nil
}

// SendTypingIndicator records the indicator.
func (m *MockSender) SendTypingIndicator(ctx context.Context, recipientPhone, messageID string) error {
	m.mu.Lock()
	m.typingIndicators = append(m.typingIndicators, messageID)
	m.mu.Unlock()
	m.logger.Printf("[MockSender] Typing indicator to %s for %s", recipientPhone, messageID)
	return nil
}

// SentMessages returns a copy of the recorded messages.
func (m *MockSender) SentMessages() []MockSent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSent, len(m.sent))
	copy(out, m.sent)
	return out
}

// TypingIndicatorCount returns how many typing indicators were sent.
func (m *MockSender) TypingIndicatorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.typingIndicators)
}

var _ Sender = (*MockSender)(nil)
