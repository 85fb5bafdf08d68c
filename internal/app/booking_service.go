package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// BookingDeps groups the collaborators of a BookingService.
type BookingDeps struct {
	Reservations *ReservationManager
	Listing      domain.ReservationLister
	Reconciler   *Reconciler
	Fees         domain.FeeSchedule
	Sessions     domain.SessionRepository
	Ledger       domain.TransactionLedger
	Gateway      domain.PaymentGateway
	Tokens       domain.TokenIssuer
	Logger       *slog.Logger
}

// BookingService is the customer-facing booking flow: hold a slot, open a
// checkout for it, and confirm or cancel it.
type BookingService struct {
	reservations *ReservationManager
	listing      domain.ReservationLister
	reconciler   *Reconciler
	fees         domain.FeeSchedule
	sessions     domain.SessionRepository
	ledger       domain.TransactionLedger
	gateway      domain.PaymentGateway
	tokens       domain.TokenIssuer
	logger       *slog.Logger
}

// NewBookingService creates a booking service.
func NewBookingService(deps BookingDeps) *BookingService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{
		reservations: deps.Reservations,
		listing:      deps.Listing,
		reconciler:   deps.Reconciler,
		fees:         deps.Fees,
		sessions:     deps.Sessions,
		ledger:       deps.Ledger,
		gateway:      deps.Gateway,
		tokens:       deps.Tokens,
		logger:       logger,
	}
}

// Checkout is a held reservation together with its payment session.
type Checkout struct {
	Reservation domain.Reservation
	Session     domain.PaymentSession
}

// Checkout holds slot for customerID at the provider's fee and opens a
// checkout session for it. If the processor cannot be reached the hold is
// cancelled so the slot is immediately bookable again.
func (s *BookingService) Checkout(ctx context.Context, tenant domain.Tenant, slot domain.Slot, customerID string) (Checkout, error) {
	if err := tenant.AcceptsBookings(); err != nil {
		return Checkout{}, err
	}

	fee, err := s.fees.Fee(ctx, tenant, slot.ProviderID)
	if err != nil {
		return Checkout{}, err
	}
	if fee.Amount <= 0 || fee.Currency == "" {
		return Checkout{}, domain.ErrFeeNotConfigured
	}

	r, err := s.reservations.CreateHold(ctx, tenant, slot, customerID, fee)
	if err != nil {
		return Checkout{}, err
	}

	session, err := s.openSession(ctx, tenant, r)
	if err != nil {
		if _, cerr := s.reservations.Cancel(ctx, tenant, r.ID, ReasonGatewayUnavailable); cerr != nil {
			s.logger.ErrorContext(ctx, "releasing hold after gateway failure",
				slog.String("tenant_id", tenant.ID),
				slog.String("reservation_id", r.ID),
				slog.Any("error", cerr),
			)
		}
		return Checkout{}, err
	}

	return Checkout{Reservation: r, Session: session}, nil
}

// RetryCheckout opens a fresh checkout session for a reservation that is
// still pending. The previous session stays on record but is no longer
// active, so its late expiry cannot release the hold. It is also expired at
// the processor so it cannot take a second payment.
func (s *BookingService) RetryCheckout(ctx context.Context, tenant domain.Tenant, customerID, reservationID string) (Checkout, error) {
	r, err := s.GetReservation(ctx, tenant, customerID, reservationID)
	if err != nil {
		return Checkout{}, err
	}
	if r.State != domain.ReservationPending {
		return Checkout{}, &domain.InvalidTransitionError{
			ReservationID: r.ID,
			Event:         domain.ReservationEventConfirm,
			Current:       r.State,
		}
	}

	previous, err := s.sessions.ActiveFor(ctx, tenant, r.ID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return Checkout{}, fmt.Errorf("loading active session: %w", err)
	}

	session, err := s.openSession(ctx, tenant, r)
	if err != nil {
		return Checkout{}, err
	}

	if previous.ExternalID != "" {
		// A payment that still lands on it is flagged by the reconciler.
		if err := s.gateway.ExpireSession(ctx, previous.ExternalID); err != nil {
			s.logger.WarnContext(ctx, "expiring superseded checkout session",
				slog.String("tenant_id", tenant.ID),
				slog.String("reservation_id", r.ID),
				slog.String("session_id", previous.ExternalID),
				slog.Any("error", err),
			)
		}
	}
	return Checkout{Reservation: r, Session: session}, nil
}

// openSession calls the processor outside any storage transaction and then
// records the session as the reservation's active one.
func (s *BookingService) openSession(ctx context.Context, tenant domain.Tenant, r domain.Reservation) (domain.PaymentSession, error) {
	token, err := s.tokens.Issue(domain.TenantReference{TenantID: tenant.ID, ReservationID: r.ID})
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("issuing tenant token: %w", err)
	}

	session, err := s.gateway.CreateSession(ctx, domain.SessionRequest{
		Reservation: r,
		Tenant:      tenant,
		TenantToken: token,
		Description: fmt.Sprintf("%s consultation %s", tenant.Name, r.Slot),
		ExpiresAt:   s.reservations.now().Add(s.reservations.AbandonAfter()),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "creating checkout session",
			slog.String("tenant_id", tenant.ID),
			slog.String("reservation_id", r.ID),
			slog.Any("error", err),
		)
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return domain.PaymentSession{}, err
		}
		return domain.PaymentSession{}, &domain.GatewayError{Kind: domain.ErrGatewayUnavailable, Op: "create checkout session", Err: err}
	}

	session.TenantID = tenant.ID
	session.ReservationID = r.ID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.reservations.now().UTC()
	}
	session.Active = true

	if err := s.sessions.Activate(ctx, tenant, session); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("storing checkout session: %w", err)
	}
	return session, nil
}

// ConfirmPayment is the customer-driven fallback to the webhook. It fetches
// the session from the processor rather than trusting the client and then
// applies the same idempotent confirmation.
func (s *BookingService) ConfirmPayment(ctx context.Context, tenant domain.Tenant, customerID, externalSessionID string) (domain.Reservation, error) {
	details, err := s.gateway.VerifySession(ctx, externalSessionID)
	if err != nil {
		return domain.Reservation{}, err
	}

	// A session from another tenant or customer is reported as not found.
	if details.Metadata[domain.MetaTenantID] != tenant.ID {
		return domain.Reservation{}, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: "verify session"}
	}
	if owner := details.Metadata[domain.MetaCustomerID]; owner != "" && owner != customerID {
		return domain.Reservation{}, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: "verify session"}
	}
	if details.Status != domain.SessionPaid {
		return domain.Reservation{}, domain.ErrPaymentIncomplete
	}

	reservationID := details.Metadata[domain.MetaReservationID]
	if reservationID == "" {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}

	outcome, r, err := s.reconciler.ConfirmVerified(ctx, tenant, reservationID, details)
	if err != nil {
		return domain.Reservation{}, err
	}

	switch outcome {
	case domain.OutcomeApplied, domain.OutcomeDuplicate:
		return r, nil
	case domain.OutcomeAnomaly:
		if r.State == domain.ReservationConfirmed {
			return r, nil
		}
		return r, &domain.InvalidTransitionError{
			ReservationID: r.ID,
			Event:         domain.ReservationEventConfirm,
			Current:       r.State,
		}
	default:
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
}

// Cancel releases the customer's pending reservation. Cancelling a
// reservation in any terminal state returns it unchanged.
func (s *BookingService) Cancel(ctx context.Context, tenant domain.Tenant, customerID, reservationID string) (domain.Reservation, error) {
	if _, err := s.GetReservation(ctx, tenant, customerID, reservationID); err != nil {
		return domain.Reservation{}, err
	}
	return s.reservations.Cancel(ctx, tenant, reservationID, ReasonCustomer)
}

// GetReservation returns a reservation owned by customerID.
func (s *BookingService) GetReservation(ctx context.Context, tenant domain.Tenant, customerID, reservationID string) (domain.Reservation, error) {
	r, err := s.reservations.Get(ctx, tenant, reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if r.CustomerID != customerID {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

// Reservations lists the customer's reservations, newest first.
func (s *BookingService) Reservations(ctx context.Context, tenant domain.Tenant, customerID string) ([]domain.Reservation, error) {
	return s.listing.ListForCustomer(ctx, tenant, customerID)
}

// ActiveSession returns the checkout session a customer can still pay on.
// Only pending reservations have one.
func (s *BookingService) ActiveSession(ctx context.Context, tenant domain.Tenant, customerID, reservationID string) (domain.PaymentSession, error) {
	r, err := s.GetReservation(ctx, tenant, customerID, reservationID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if r.State != domain.ReservationPending {
		return domain.PaymentSession{}, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: "active session"}
	}
	return s.sessions.ActiveFor(ctx, tenant, reservationID)
}

// History lists the customer's transactions, newest first.
func (s *BookingService) History(ctx context.Context, tenant domain.Tenant, customerID string) ([]domain.Transaction, error) {
	return s.ledger.ListForCustomer(ctx, tenant, customerID)
}
