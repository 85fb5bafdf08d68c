package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantSuspended     = errors.New("tenant is suspended")
	ErrNoTenantScope       = errors.New("operation requires a clinic tenant")
	ErrPlatformOnly        = errors.New("operation is only served on the platform host")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrFeeNotConfigured    = errors.New("provider has no consultation fee configured")
	ErrPaymentIncomplete   = errors.New("payment has not been completed")
	ErrSignatureInvalid    = errors.New("webhook signature invalid")
	ErrMalformedPayload    = errors.New("webhook payload malformed")
	ErrReviewItemNotFound  = errors.New("review item not found")
	ErrRoutingKeyConflict  = errors.New("routing key already mapped to a tenant")

	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrProviderError      = errors.New("payment provider error")
	ErrSessionNotFound    = errors.New("payment session not found")
)

// SlotConflictError is returned when a live reservation already holds the slot.
// Callers must not retry automatically.
type SlotConflictError struct {
	Slot Slot
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %s is already taken", e.Slot)
}

// TransitionError is returned when a tenant state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// InvalidTransitionError is returned when a reservation cannot take the
// requested event from its current state.
type InvalidTransitionError struct {
	ReservationID string
	Event         ReservationEvent
	Current       ReservationState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("reservation %s: event %q is not valid from state %q", e.ReservationID, e.Event, e.Current)
}

// AlreadyConfirmed reports whether the rejected event was a confirm against a
// confirmed reservation, which callers treat as idempotent success.
func (e *InvalidTransitionError) AlreadyConfirmed() bool {
	return e.Event == ReservationEventConfirm && e.Current == ReservationConfirmed
}

// Released reports whether the reservation had already given its slot up.
func (e *InvalidTransitionError) Released() bool {
	return e.Current == ReservationCancelled || e.Current == ReservationExpired
}

// GatewayError wraps a payment processor failure. Kind is one of
// ErrGatewayUnavailable, ErrProviderError or ErrSessionNotFound so callers can
// use errors.Is against the sentinel.
type GatewayError struct {
	Kind error
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
