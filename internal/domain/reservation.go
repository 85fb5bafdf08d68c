package domain

import (
	"fmt"
	"time"
)

// ReservationState is the lifecycle state of a slot reservation.
type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationCancelled ReservationState = "cancelled"
	ReservationExpired   ReservationState = "expired"
)

// Live reports whether the state still occupies its slot.
func (s ReservationState) Live() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// ReservationEvent triggers a reservation state transition.
type ReservationEvent string

const (
	ReservationEventConfirm ReservationEvent = "confirm"
	ReservationEventCancel  ReservationEvent = "cancel"
	ReservationEventExpire  ReservationEvent = "expire"
)

// Topic is the published name of the event's outcome, e.g.
// "reservation.confirmed".
func (e ReservationEvent) Topic() string {
	switch e {
	case ReservationEventConfirm:
		return "reservation.confirmed"
	case ReservationEventCancel:
		return "reservation.cancelled"
	case ReservationEventExpire:
		return "reservation.expired"
	}
	return "reservation." + string(e)
}

// ReservationTransition defines a valid reservation state change.
type ReservationTransition struct {
	Event ReservationEvent
	Src   ReservationState
	Dst   ReservationState
}

// ReservationTransitions lists every allowed move. Only pending reservations
// move; confirmed, cancelled and expired are terminal.
var ReservationTransitions = []ReservationTransition{
	{Event: ReservationEventConfirm, Src: ReservationPending, Dst: ReservationConfirmed},
	{Event: ReservationEventCancel, Src: ReservationPending, Dst: ReservationCancelled},
	{Event: ReservationEventExpire, Src: ReservationPending, Dst: ReservationExpired},
}

const (
	SlotDateLayout  = "2006-01-02"
	SlotStartLayout = "15:04"
)

// Slot is the bookable (provider, date, start-time) triple.
type Slot struct {
	ProviderID string
	Date       string
	Start      string
}

// Validate checks the slot fields are well formed.
func (s Slot) Validate() error {
	if s.ProviderID == "" {
		return fmt.Errorf("%w: provider id is required", ErrInvalidSlot)
	}
	if _, err := time.Parse(SlotDateLayout, s.Date); err != nil {
		return fmt.Errorf("%w: slot date %q must be YYYY-MM-DD", ErrInvalidSlot, s.Date)
	}
	if _, err := time.Parse(SlotStartLayout, s.Start); err != nil {
		return fmt.Errorf("%w: slot start %q must be HH:MM", ErrInvalidSlot, s.Start)
	}
	return nil
}

func (s Slot) String() string {
	return fmt.Sprintf("%s@%s %s", s.ProviderID, s.Date, s.Start)
}

// Money is an amount in minor units of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Reservation is a provisional or confirmed claim on a slot.
type Reservation struct {
	ID           string
	TenantID     string
	Slot         Slot
	CustomerID   string
	State        ReservationState
	Price        Money
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewReservation creates a pending hold.
func NewReservation(id string, tenant Tenant, slot Slot, customerID string, price Money, now time.Time) Reservation {
	now = now.UTC()
	return Reservation{
		ID:         id,
		TenantID:   tenant.ID,
		Slot:       slot,
		CustomerID: customerID,
		State:      ReservationPending,
		Price:      price,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ReservationMessage is the wire form of a reservation lifecycle event.
type ReservationMessage struct {
	Topic         string `json:"topic"`
	TenantID      string `json:"tenant_id"`
	ReservationID string `json:"reservation_id"`
	ProviderID    string `json:"provider_id"`
	SlotDate      string `json:"slot_date"`
	SlotStart     string `json:"slot_start"`
	CustomerID    string `json:"customer_id"`
	State         string `json:"state"`
	Reason        string `json:"reason,omitempty"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	OccurredAt    string `json:"occurred_at"`
}

// NewReservationMessage snapshots r after event so consumers never need to
// read the reservation back.
func NewReservationMessage(event ReservationEvent, r Reservation) ReservationMessage {
	return ReservationMessage{
		Topic:         event.Topic(),
		TenantID:      r.TenantID,
		ReservationID: r.ID,
		ProviderID:    r.Slot.ProviderID,
		SlotDate:      r.Slot.Date,
		SlotStart:     r.Slot.Start,
		CustomerID:    r.CustomerID,
		State:         string(r.State),
		Reason:        r.CancelReason,
		Amount:        r.Price.Amount,
		Currency:      r.Price.Currency,
		OccurredAt:    r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
