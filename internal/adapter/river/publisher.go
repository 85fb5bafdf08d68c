package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries a reservation lifecycle event. River serializes it as
// JSON into its job table. It holds a snapshot of the reservation, so the
// worker never needs to query the database.
type EventJobArgs struct {
	domain.ReservationMessage
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "reservation.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a reservation event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.ReservationEvent, r domain.Reservation) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		ReservationMessage: domain.NewReservationMessage(event, r),
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
