package producer

import (
	"context"

	"wabridge/internal/models"
)

// Producer defines the interface for the gateway-to-worker handoff queue
type Producer interface {
	// Publish sends a single inbound message to the queue
	Publish(ctx context.Context, msg *models.InboundMessage) error

	// Close closes the producer connection
	Close() error
}
