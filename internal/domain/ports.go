package domain

import (
	"context"
	"errors"
	"time"
)

// ErrConcurrentUpdate is returned by a compare-and-set state update when the
// stored state no longer matches the expected source state.
var ErrConcurrentUpdate = errors.New("reservation state changed concurrently")

// ErrTransactionNotFound is returned when no transaction exists for a session.
var ErrTransactionNotFound = errors.New("transaction not found")

// TenantRepository defines the persistence contract for tenants and their
// routing keys.
type TenantRepository interface {
	Create(ctx context.Context, tenant Tenant) error
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetByRoutingKey(ctx context.Context, routingKey string) (Tenant, error)
	AddRoutingKey(ctx context.Context, tenantID, routingKey string) error
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	Update(ctx context.Context, tenant Tenant) error
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// ReservationRepository persists reservations inside one tenant partition.
// Every mutating method is a single atomic unit of work.
type ReservationRepository interface {
	// CreateHold expires pending holds on the same slot created at or before
	// abandonedBefore that have no completed transaction, then inserts r under the live-slot uniqueness
	// constraint. It returns the holds it expired, or a *SlotConflictError
	// when a live reservation still occupies the slot.
	CreateHold(ctx context.Context, tenant Tenant, r Reservation, abandonedBefore time.Time) ([]Reservation, error)
	Get(ctx context.Context, tenant Tenant, id string) (Reservation, error)
	// UpdateState moves a reservation from one state to another only if it is
	// still in from. On mismatch it returns the stored reservation together
	// with ErrConcurrentUpdate.
	UpdateState(ctx context.Context, tenant Tenant, id string, from, to ReservationState, reason string, at time.Time) (Reservation, error)
}

// ReservationLister is the customer's view of their reservations.
type ReservationLister interface {
	// ListForCustomer returns the customer's reservations, newest first.
	ListForCustomer(ctx context.Context, tenant Tenant, customerID string) ([]Reservation, error)
}

// SessionRepository tracks checkout sessions. A reservation has at most one
// active session; activating a new one deactivates, but keeps, the old.
type SessionRepository interface {
	Activate(ctx context.Context, tenant Tenant, session PaymentSession) error
	Get(ctx context.Context, tenant Tenant, externalID string) (PaymentSession, error)
	ActiveFor(ctx context.Context, tenant Tenant, reservationID string) (PaymentSession, error)
}

// TransactionLedger is the append-only record of payment outcomes.
type TransactionLedger interface {
	// Record upserts on the external session id. It reports whether the
	// stored state changed. A completed transaction is never downgraded.
	Record(ctx context.Context, tenant Tenant, tx Transaction) (bool, error)
	GetBySession(ctx context.Context, tenant Tenant, externalSessionID string) (Transaction, error)
	// ListForCustomer returns the customer's transactions, newest first.
	ListForCustomer(ctx context.Context, tenant Tenant, customerID string) ([]Transaction, error)
}

// ReviewQueue stores items that need an operator decision.
type ReviewQueue interface {
	Flag(ctx context.Context, item ReviewItem) error
	List(ctx context.Context, filter ReviewFilter) ([]ReviewItem, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}

// FeeSchedule returns the consultation fee charged for a provider.
type FeeSchedule interface {
	Fee(ctx context.Context, tenant Tenant, providerID string) (Money, error)
	SetFee(ctx context.Context, tenant Tenant, providerID string, fee Money) error
}

// TransitionValidator checks tenant lifecycle transitions.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}

// ReservationValidator checks reservation lifecycle transitions and returns
// an *InvalidTransitionError for disallowed moves.
type ReservationValidator interface {
	Apply(ctx context.Context, r Reservation, event ReservationEvent) (ReservationState, error)
}

// PaymentGateway is the boundary to the external payment processor.
// Implementations return *GatewayError for every failure.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (PaymentSession, error)
	VerifySession(ctx context.Context, externalID string) (SessionDetails, error)
	// ExpireSession closes an open session so it can no longer be paid.
	ExpireSession(ctx context.Context, externalID string) error
}

// TenantReference is the content of a signed tenant token.
type TenantReference struct {
	TenantID      string
	ReservationID string
}

// TokenIssuer signs and verifies opaque tenant references embedded in
// checkout metadata.
type TokenIssuer interface {
	Issue(ref TenantReference) (string, error)
	Parse(token string) (TenantReference, error)
}

// EventPublisher emits reservation lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event ReservationEvent, r Reservation) error
}

// RetryQueue schedules asynchronous reprocessing of a payment event.
type RetryQueue interface {
	EnqueueRetry(ctx context.Context, event PaymentEvent) error
}
