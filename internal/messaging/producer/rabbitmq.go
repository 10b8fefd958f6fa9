package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"wabridge/config"
	"wabridge/internal/models"
)

// RabbitMQProducer implements the Producer interface on a durable queue
type RabbitMQProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *log.Logger
}

// NewRabbitMQProducer connects to RabbitMQ and declares the handoff queue.
// The dial is retried because the broker may still be starting.
func NewRabbitMQProducer(cfg config.RabbitMQConfig, logger *log.Logger) (*RabbitMQProducer, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, errors.New("rabbitmq configuration incomplete: both url and queue are required")
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < 10; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		logger.Printf("Failed to connect to RabbitMQ, retrying in 2s... (%d/10)", i+1)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logger.Printf("RabbitMQ producer created, queue: %s", cfg.Queue)
	return &RabbitMQProducer{conn: conn, channel: ch, queue: cfg.Queue, logger: logger}, nil
}

// Publish sends an inbound message with persistent delivery mode.
func (p *RabbitMQProducer) Publish(ctx context.Context, msg *models.InboundMessage) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize inbound message: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			MessageId:    msg.DeliveryID,
			ContentType:  "application/json",
			Body:         msgBytes,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		p.logger.Printf("Failed to publish RabbitMQ message (DeliveryID: %s): %v", msg.DeliveryID, err)
		return fmt.Errorf("failed to publish to RabbitMQ: %w", err)
	}
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQProducer) Close() error {
	p.logger.Println("Closing RabbitMQ producer...")
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

var _ Producer = (*RabbitMQProducer)(nil)
