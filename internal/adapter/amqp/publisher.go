// Package amqp publishes reservation lifecycle events to RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// QueueName is the durable queue that receives every reservation event.
const QueueName = "reservation.events"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements domain.EventPublisher over a single AMQP channel.
type Publisher struct {
	mu   sync.Mutex
	ch   Channel
	conn *amqp.Connection
	now  func() time.Time
}

var _ domain.EventPublisher = (*Publisher)(nil)

// Dial connects to the broker at url and declares the event queue.
func Dial(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	p, err := NewPublisher(ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares the event queue on ch.
func NewPublisher(ch Channel) (*Publisher, error) {
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declaring queue %s: %w", QueueName, err)
	}
	return &Publisher{ch: ch, now: time.Now}, nil
}

// Publish sends the event as a persistent JSON message on the default
// exchange. Channels are not safe for concurrent publishing, so calls are
// serialized.
func (p *Publisher) Publish(ctx context.Context, event domain.ReservationEvent, r domain.Reservation) error {
	msg := domain.NewReservationMessage(event, r)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Topic, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    r.TenantID + ":" + r.ID + ":" + msg.Topic,
		Type:         msg.Topic,
		Timestamp:    p.now().UTC(),
		Headers:      amqp.Table{"tenant_id": r.TenantID},
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", QueueName, false, false, pub); err != nil {
		return fmt.Errorf("publishing %s for reservation %s: %w", msg.Topic, r.ID, err)
	}
	return nil
}

// Close closes the channel and, when the publisher owns it, the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
