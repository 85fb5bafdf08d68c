package domain

import "time"

// Metadata keys embedded in every checkout session so the asynchronous
// callback can be processed without a server-side lookup.
const (
	MetaReservationID = "reservation_id"
	MetaTenantID      = "tenant_id"
	MetaCustomerID    = "customer_id"
	MetaTenantToken   = "tenant_token"
)

// PaymentSession is an external checkout reference bound to one reservation.
type PaymentSession struct {
	ExternalID    string
	ReservationID string
	TenantID      string
	Amount        Money
	CheckoutURL   string
	Active        bool
	CreatedAt     time.Time
}

// SessionRequest carries what the gateway needs to open a checkout.
type SessionRequest struct {
	Reservation Reservation
	Tenant      Tenant
	TenantToken string
	Description string
	ExpiresAt   time.Time
}

// SessionStatus is the authoritative payment state of a checkout session.
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionPaid    SessionStatus = "paid"
	SessionExpired SessionStatus = "expired"
	SessionFailed  SessionStatus = "failed"
)

// SessionDetails is what the processor reports about a session.
type SessionDetails struct {
	ExternalID    string            `json:"external_id"`
	Status        SessionStatus     `json:"status"`
	Amount        Money             `json:"amount"`
	PaymentIntent string            `json:"payment_intent,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TransactionStatus is the outcome of a payment attempt.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is the durable record of a payment outcome. ExternalSessionID
// is the idempotency key: at most one transaction exists per session.
type Transaction struct {
	ID                string
	TenantID          string
	ExternalSessionID string
	ReservationID     string
	CustomerID        string
	PaymentIntent     string
	Amount            Money
	Status            TransactionStatus
	RecordedAt        time.Time
}

// PaymentEventType names the processor events the reconciler consumes.
type PaymentEventType string

const (
	EventCheckoutCompleted     PaymentEventType = "checkout.session.completed"
	EventCheckoutExpired       PaymentEventType = "checkout.session.expired"
	EventCheckoutPaymentFailed PaymentEventType = "checkout.session.async_payment_failed"
)

// PaymentEvent is a verified, decoded processor callback.
type PaymentEvent struct {
	ID      string           `json:"id"`
	Type    PaymentEventType `json:"type"`
	Created int64            `json:"created"`
	Session SessionDetails   `json:"session"`
	Raw     []byte           `json:"raw,omitempty"`
}

// Outcome classifies how the reconciler disposed of an event.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeQuarantined Outcome = "quarantined"
	OutcomeAnomaly     Outcome = "anomaly"
)
