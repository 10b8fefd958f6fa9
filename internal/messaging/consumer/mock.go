package consumer

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"wabridge/internal/models"
)

// MockConsumer uses fixed predefined messages for testing.
type MockConsumer struct {
	logger   *log.Logger
	messages chan *models.InboundMessage

	mu     sync.Mutex
	closed bool
}

// PredefinedMessages stores the messages to be simulated.
var PredefinedMessages []*models.InboundMessage

// init generates fixed test data when the package is loaded.
func init() {
	now := time.Now()

	PredefinedMessages = []*models.InboundMessage{
		{
			DeliveryID:   "wamid.mock-delivery-0001",
			Sender:       "15551230001",
			MessageType:  "text",
			Body:         "What time is maghrib today?",
			SentUnixTime: now.Unix() - 60,
			ReceivedAt:   now.Format(time.RFC3339Nano),
		},
		{
			DeliveryID:   "wamid.mock-delivery-0002",
			Sender:       "15551230002",
			MessageType:  "location",
			Latitude:     30.0444,
			Longitude:    31.2357,
			SentUnixTime: now.Unix() - 30,
			ReceivedAt:   now.Format(time.RFC3339Nano),
		},
		// Same delivery ID as the first message (simulates upstream redelivery)
		{
			DeliveryID:   "wamid.mock-delivery-0001",
			Sender:       "15551230001",
			MessageType:  "text",
			Body:         "What time is maghrib today?",
			SentUnixTime: now.Unix() - 60,
			ReceivedAt:   now.Format(time.RFC3339Nano),
		},
	}
}

// NewMockConsumer creates a MockConsumer and loads predefined messages.
func NewMockConsumer(logger *log.Logger) *MockConsumer {
	mc := &MockConsumer{
		logger:   logger,
		messages: make(chan *models.InboundMessage, len(PredefinedMessages)+5),
	}
	logger.Println("[MockConsumer] Initializing with predefined messages...")
	for _, msg := range PredefinedMessages {
		mc.messages <- msg
	}
	logger.Println("[MockConsumer] Loaded " + strconv.Itoa(len(PredefinedMessages)) + " predefined messages")
	return mc
}

// Push adds a message to the mock queue. Used by tests.
func (m *MockConsumer) Push(msg *models.InboundMessage) {
	if !m.enqueue(msg) {
		m.logger.Printf("[MockConsumer] Warning: Push after close, message dropped: delivery_id=%s", msg.DeliveryID)
	}
}

// enqueue sends on the channel unless the consumer is closed or the channel
// is full. Holding the mutex across the send keeps it ordered before Close.
func (m *MockConsumer) enqueue(msg *models.InboundMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.messages <- msg:
		return true
	default:
		m.logger.Printf("[MockConsumer] Warning: Failed to re-queue message (channel full?): delivery_id=%s", msg.DeliveryID)
		return true
	}
}

// Consume reads predefined messages from the channel.
func (m *MockConsumer) Consume(ctx context.Context) (msg *models.InboundMessage, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case msg := <-m.messages:
		if msg == nil {
			return nil, nil, errors.New("message channel closed")
		}
		m.logger.Printf("[MockConsumer] Consumed message: delivery_id=%s", msg.DeliveryID)

		ackCallback := func(success bool) {
			if success {
				m.logger.Printf("[MockConsumer] ACK received for message: delivery_id=%s", msg.DeliveryID)
				return
			}
			m.logger.Printf("[MockConsumer] NACK received for message: delivery_id=%s. Re-queueing (mock)", msg.DeliveryID)
			if !m.enqueue(msg) {
				m.logger.Printf("[MockConsumer] Warning: NACK after close, message dropped: delivery_id=%s", msg.DeliveryID)
			}
		}
		return msg, ackCallback, nil
	}
}

// Close closes the message channel. The mutex orders the close against any
// outstanding ack callback still re-queueing, so late nacks are dropped
// instead of panicking on a closed channel.
func (m *MockConsumer) Close() error {
	m.logger.Println("[MockConsumer] Closing...")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.messages)
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
