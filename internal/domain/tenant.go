package domain

import "time"

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Event represents an action that triggers a tenant state transition.
type Event string

const (
	EventSuspend    Event = "suspend"
	EventReactivate Event = "reactivate"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the tenant lifecycle.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventSuspend, Src: StatusActive, Dst: StatusSuspended},
	{Event: EventReactivate, Src: StatusSuspended, Dst: StatusActive},
}

// DefaultPublicTenantID identifies the fallback partition used for hosts
// that do not map to any clinic.
const DefaultPublicTenantID = "public"

// Tenant identifies one isolated data partition. Every reservation, session
// and transaction belongs to exactly one tenant, and every repository call
// receives the tenant explicitly.
type Tenant struct {
	ID         string
	Name       string
	RoutingKey string
	Status     Status
	Public     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTenant creates an active tenant reachable at routingKey.
func NewTenant(id, name, routingKey string) Tenant {
	now := time.Now().UTC()
	return Tenant{
		ID:         id,
		Name:       name,
		RoutingKey: routingKey,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AcceptsBookings reports whether new holds may be taken in this partition.
func (t Tenant) AcceptsBookings() error {
	if t.Public || t.ID == "" {
		return ErrNoTenantScope
	}
	if t.Status != StatusActive {
		return ErrTenantSuspended
	}
	return nil
}
