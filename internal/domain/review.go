package domain

import "time"

// ReviewKind classifies why an item needs a human decision.
type ReviewKind string

const (
	ReviewUnresolvedTenant   ReviewKind = "unresolved_tenant"
	ReviewMissingMetadata    ReviewKind = "missing_metadata"
	ReviewUnknownReservation ReviewKind = "unknown_reservation"
	ReviewPaidReleasedSlot   ReviewKind = "paid_released_slot"
	ReviewRetryExhausted     ReviewKind = "retry_exhausted"
	ReviewDuplicatePayment   ReviewKind = "duplicate_payment"
)

// ReviewItem is a quarantined event or anomaly surfaced to operators.
// Items are never auto-resolved.
type ReviewItem struct {
	ID                string
	Kind              ReviewKind
	TenantID          string
	ReservationID     string
	ExternalSessionID string
	EventID           string
	Detail            string
	Payload           []byte
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// ReviewFilter narrows a review listing.
type ReviewFilter struct {
	// TenantID limits the listing to one tenant's items. Empty lists all.
	TenantID        string
	Kind            *ReviewKind
	IncludeResolved bool
	Limit           int
}
