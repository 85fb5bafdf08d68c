package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// DefaultAbandonAfter is how long a pending hold blocks its slot before the
// next competing hold may expire it.
const DefaultAbandonAfter = 30 * time.Minute

// Cancellation reasons recorded on released reservations.
const (
	ReasonCustomer           = "customer"
	ReasonGatewayUnavailable = "gateway_unavailable"
	ReasonPaymentFailed      = "payment_failed"
	ReasonSessionExpired     = "session_expired"
)

// ReservationManager owns the reservation lifecycle: hold, confirm, cancel
// and expire. Slot exclusivity is enforced by the repository; the manager
// only decides which transitions to attempt.
type ReservationManager struct {
	repo         domain.ReservationRepository
	validator    domain.ReservationValidator
	publisher    domain.EventPublisher
	abandonAfter time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// ManagerOption configures a ReservationManager.
type ManagerOption func(*ReservationManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *ReservationManager) { m.now = now }
}

// WithAbandonAfter sets the abandonment threshold for pending holds.
func WithAbandonAfter(d time.Duration) ManagerOption {
	return func(m *ReservationManager) {
		if d > 0 {
			m.abandonAfter = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *ReservationManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewReservationManager creates a manager. publisher may be nil.
func NewReservationManager(repo domain.ReservationRepository, validator domain.ReservationValidator, publisher domain.EventPublisher, opts ...ManagerOption) *ReservationManager {
	m := &ReservationManager{
		repo:         repo,
		validator:    validator,
		publisher:    publisher,
		abandonAfter: DefaultAbandonAfter,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AbandonAfter returns the configured abandonment threshold.
func (m *ReservationManager) AbandonAfter() time.Duration {
	return m.abandonAfter
}

// CreateHold takes a pending hold on slot for customerID. Stale pending holds
// on the same slot are expired in the same unit of work. A live competitor
// yields *domain.SlotConflictError, which callers must not retry.
func (m *ReservationManager) CreateHold(ctx context.Context, tenant domain.Tenant, slot domain.Slot, customerID string, price domain.Money) (domain.Reservation, error) {
	if err := tenant.AcceptsBookings(); err != nil {
		return domain.Reservation{}, err
	}
	if err := slot.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	if customerID == "" {
		return domain.Reservation{}, fmt.Errorf("%w: customer id is required", domain.ErrInvalidSlot)
	}

	id, err := generateID()
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("generating reservation id: %w", err)
	}

	now := m.now().UTC()
	r := domain.NewReservation(id, tenant, slot, customerID, price, now)

	expired, err := m.repo.CreateHold(ctx, tenant, r, now.Add(-m.abandonAfter))
	if err != nil {
		return domain.Reservation{}, err
	}

	for _, e := range expired {
		m.logger.InfoContext(ctx, "abandoned hold expired",
			slog.String("tenant_id", tenant.ID),
			slog.String("reservation_id", e.ID),
			slog.String("slot", e.Slot.String()),
		)
		m.publish(ctx, domain.ReservationEventExpire, e)
	}

	return r, nil
}

// Get returns a reservation in tenant.
func (m *ReservationManager) Get(ctx context.Context, tenant domain.Tenant, id string) (domain.Reservation, error) {
	return m.repo.Get(ctx, tenant, id)
}

// Confirm moves a pending reservation to confirmed. Any other current state
// yields *domain.InvalidTransitionError; callers decide whether that is an
// idempotent success or an anomaly.
func (m *ReservationManager) Confirm(ctx context.Context, tenant domain.Tenant, id string) (domain.Reservation, error) {
	return m.transition(ctx, tenant, id, domain.ReservationEventConfirm, "")
}

// Cancel releases a pending reservation. Cancelling a reservation that has
// already left pending is a no-op and returns it unchanged.
func (m *ReservationManager) Cancel(ctx context.Context, tenant domain.Tenant, id, reason string) (domain.Reservation, error) {
	return m.release(ctx, tenant, id, domain.ReservationEventCancel, reason)
}

// Expire releases a pending reservation whose checkout lapsed. Like Cancel it
// is a no-op on any other state, so a confirmed booking is never regressed.
func (m *ReservationManager) Expire(ctx context.Context, tenant domain.Tenant, id, reason string) (domain.Reservation, error) {
	return m.release(ctx, tenant, id, domain.ReservationEventExpire, reason)
}

func (m *ReservationManager) release(ctx context.Context, tenant domain.Tenant, id string, event domain.ReservationEvent, reason string) (domain.Reservation, error) {
	r, err := m.transition(ctx, tenant, id, event, reason)

	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		return m.repo.Get(ctx, tenant, id)
	}
	return r, err
}

func (m *ReservationManager) transition(ctx context.Context, tenant domain.Tenant, id string, event domain.ReservationEvent, reason string) (domain.Reservation, error) {
	r, err := m.repo.Get(ctx, tenant, id)
	if err != nil {
		return domain.Reservation{}, err
	}

	to, err := m.validator.Apply(ctx, r, event)
	if err != nil {
		return r, err
	}

	updated, err := m.repo.UpdateState(ctx, tenant, id, r.State, to, reason, m.now().UTC())
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		// Lost the race: judge the event against the state that won.
		if _, verr := m.validator.Apply(ctx, updated, event); verr != nil {
			return updated, verr
		}
		return updated, fmt.Errorf("reservation %s: %w", id, err)
	}
	if err != nil {
		return domain.Reservation{}, err
	}

	m.publish(ctx, event, updated)
	return updated, nil
}

// publish emits a lifecycle event. Failures are logged and never undo the
// state change.
func (m *ReservationManager) publish(ctx context.Context, event domain.ReservationEvent, r domain.Reservation) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, event, r); err != nil {
		m.logger.ErrorContext(ctx, "publishing reservation event",
			slog.String("tenant_id", r.TenantID),
			slog.String("reservation_id", r.ID),
			slog.String("event", string(event)),
			slog.Any("error", err),
		)
	}
}
