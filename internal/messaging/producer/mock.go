package producer

import (
	"context"
	"log"
	"sync"

	"wabridge/internal/models"
)

var _ Producer = (*MockProducer)(nil)

// MockProducer records published messages in memory. Used by the mock queue
// backend for local runs and by tests.
type MockProducer struct {
	logger *log.Logger

	mu        sync.Mutex
	published []models.InboundMessage

	// FailPublish forces Publish to return an error.
	FailPublish error
}

func NewMockProducer(logger *log.Logger) *MockProducer {
	return &MockProducer{logger: logger}
}

func (p *MockProducer) Publish(ctx context.Context, msg *models.InboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPublish != nil {
		return p.FailPublish
	}
	p.published = append(p.published, *msg)
	p.logger.Printf("Mock producer: recorded message %s from %s", msg.DeliveryID, msg.Sender)
	return nil
}

// Published returns a copy of everything published so far.
func (p *MockProducer) Published() []models.InboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.InboundMessage, len(p.published))
	copy(out, p.published)
	return out
}

func (p *MockProducer) Close() error { return nil }
