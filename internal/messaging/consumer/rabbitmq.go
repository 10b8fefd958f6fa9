package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"wabridge/config"
	"wabridge/internal/models"
)

// RabbitMQConsumer implements the Consumer interface on a durable queue with
// manual acknowledgements.
type RabbitMQConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	logger     *log.Logger
}

// NewRabbitMQConsumer connects to RabbitMQ and starts consuming the queue.
func NewRabbitMQConsumer(cfg config.RabbitMQConfig, logger *log.Logger) (*RabbitMQConsumer, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, errors.New("rabbitmq configuration incomplete: both url and queue are required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	deliveries, err := ch.Consume(
		cfg.Queue, // queue
		"",        // consumer
		false,     // auto-ack (manual ack drives redelivery)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Printf("RabbitMQ consumer created, queue: %s", cfg.Queue)
	return &RabbitMQConsumer{conn: conn, channel: ch, deliveries: deliveries, logger: logger}, nil
}

// Consume implements the Consumer interface by reading from the delivery channel
func (r *RabbitMQConsumer) Consume(ctx context.Context) (msg *models.InboundMessage, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case d, ok := <-r.deliveries:
		if !ok {
			return nil, nil, errors.New("rabbitmq delivery channel closed")
		}

		var inbound models.InboundMessage
		if err := json.Unmarshal(d.Body, &inbound); err != nil {
			r.logger.Printf("RabbitMQ consumer: Failed to deserialize message %s: %v. Message will be discarded.", d.MessageId, err)
			_ = d.Ack(false)
			return nil, nil, fmt.Errorf("message deserialization failed: %w", err)
		}

		ackCallback := func(success bool) {
			if success {
				if err := d.Ack(false); err != nil {
					r.logger.Printf("RabbitMQ consumer: Failed to ack %s: %v", d.MessageId, err)
				}
			} else {
				// Nack with requeue: the broker redelivers.
				if err := d.Nack(false, true); err != nil {
					r.logger.Printf("RabbitMQ consumer: Failed to nack %s: %v", d.MessageId, err)
				}
			}
		}

		return &inbound, ackCallback, nil
	}
}

// Close closes the channel and connection
func (r *RabbitMQConsumer) Close() error {
	r.logger.Println("Closing RabbitMQ consumer...")
	if err := r.channel.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}

var _ Consumer = (*RabbitMQConsumer)(nil)
