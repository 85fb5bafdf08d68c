package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Reconciler applies payment processor events to reservations and the
// transaction ledger. Every path is idempotent: replaying an event converges
// to the state produced by its first delivery.
//
// Process returns a non-nil error only for infrastructure failures that are
// worth retrying. Stale or unattributable events are acknowledged and filed in
// the review queue instead.
type Reconciler struct {
	resolver     *TenantResolver
	reservations *ReservationManager
	sessions     domain.SessionRepository
	ledger       domain.TransactionLedger
	review       domain.ReviewQueue
	now          func() time.Time
	logger       *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(
	resolver *TenantResolver,
	reservations *ReservationManager,
	sessions domain.SessionRepository,
	ledger domain.TransactionLedger,
	review domain.ReviewQueue,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		resolver:     resolver,
		reservations: reservations,
		sessions:     sessions,
		ledger:       ledger,
		review:       review,
		now:          reservations.now,
		logger:       logger,
	}
}

// Process applies one verified processor event.
func (c *Reconciler) Process(ctx context.Context, event domain.PaymentEvent) (domain.Outcome, error) {
	switch event.Type {
	case domain.EventCheckoutCompleted, domain.EventCheckoutExpired, domain.EventCheckoutPaymentFailed:
	default:
		c.logger.DebugContext(ctx, "ignoring payment event",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)),
		)
		return domain.OutcomeIgnored, nil
	}

	// Delayed payment methods complete the checkout before the money moves;
	// the paid signal arrives as a later event.
	if event.Type == domain.EventCheckoutCompleted && event.Session.Status == domain.SessionOpen {
		c.logger.InfoContext(ctx, "checkout completed awaiting payment",
			slog.String("event_id", event.ID),
			slog.String("session_id", event.Session.ExternalID),
		)
		return domain.OutcomeIgnored, nil
	}

	meta := event.Session.Metadata
	token := meta[domain.MetaTenantToken]
	if token == "" && meta[domain.MetaReservationID] == "" {
		return c.quarantine(ctx, event, domain.ReviewMissingMetadata, domain.Tenant{}, "", "event carries no booking metadata")
	}

	tenant, ref, err := c.resolver.ResolveByOpaqueToken(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrTenantNotFound) {
			return "", fmt.Errorf("resolving tenant for event %s: %w", event.ID, err)
		}
		return c.quarantine(ctx, event, domain.ReviewUnresolvedTenant, domain.Tenant{}, meta[domain.MetaReservationID], err.Error())
	}

	if id := meta[domain.MetaTenantID]; id != "" && id != tenant.ID {
		return c.quarantine(ctx, event, domain.ReviewUnresolvedTenant, domain.Tenant{}, meta[domain.MetaReservationID],
			fmt.Sprintf("metadata tenant %q does not match token tenant %q", id, tenant.ID))
	}
	if id := meta[domain.MetaReservationID]; id != "" && id != ref.ReservationID {
		return c.quarantine(ctx, event, domain.ReviewMissingMetadata, tenant, id,
			fmt.Sprintf("metadata reservation %q does not match token reservation %q", id, ref.ReservationID))
	}
	if ref.ReservationID == "" {
		return c.quarantine(ctx, event, domain.ReviewMissingMetadata, tenant, "", "token carries no reservation id")
	}

	switch event.Type {
	case domain.EventCheckoutCompleted:
		outcome, _, err := c.complete(ctx, tenant, ref.ReservationID, event.Session, event)
		return outcome, err
	case domain.EventCheckoutExpired:
		return c.expire(ctx, tenant, ref.ReservationID, event)
	default:
		return c.fail(ctx, tenant, ref.ReservationID, event)
	}
}

// ConfirmVerified applies a session whose paid status was fetched directly
// from the processor. It converges with the webhook path.
func (c *Reconciler) ConfirmVerified(ctx context.Context, tenant domain.Tenant, reservationID string, details domain.SessionDetails) (domain.Outcome, domain.Reservation, error) {
	return c.complete(ctx, tenant, reservationID, details, domain.PaymentEvent{
		Type:    domain.EventCheckoutCompleted,
		Session: details,
	})
}

// FlagExhausted files an event whose processing kept failing.
func (c *Reconciler) FlagExhausted(ctx context.Context, event domain.PaymentEvent, cause error) error {
	detail := "retries exhausted"
	if cause != nil {
		detail = fmt.Sprintf("retries exhausted: %v", cause)
	}
	_, err := c.quarantine(ctx, event, domain.ReviewRetryExhausted, domain.Tenant{}, event.Session.Metadata[domain.MetaReservationID], detail)
	return err
}

func (c *Reconciler) complete(ctx context.Context, tenant domain.Tenant, reservationID string, details domain.SessionDetails, event domain.PaymentEvent) (domain.Outcome, domain.Reservation, error) {
	r, err := c.reservations.Get(ctx, tenant, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			outcome, qerr := c.quarantine(ctx, event, domain.ReviewUnknownReservation, tenant, reservationID, "paid session references an unknown reservation")
			return outcome, domain.Reservation{}, qerr
		}
		return "", domain.Reservation{}, err
	}

	if _, err := c.record(ctx, tenant, r, details, domain.TransactionCompleted); err != nil {
		return "", domain.Reservation{}, err
	}

	confirmed, err := c.reservations.Confirm(ctx, tenant, reservationID)
	if err == nil {
		c.logger.InfoContext(ctx, "reservation confirmed",
			slog.String("tenant_id", tenant.ID),
			slog.String("reservation_id", reservationID),
			slog.String("session_id", details.ExternalID),
			slog.String("event_id", event.ID),
		)
		return domain.OutcomeApplied, confirmed, nil
	}

	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		return "", domain.Reservation{}, err
	}

	current, gerr := c.reservations.Get(ctx, tenant, reservationID)
	if gerr != nil {
		return "", domain.Reservation{}, gerr
	}

	if invalid.AlreadyConfirmed() {
		paid, err := c.paidElsewhere(ctx, tenant, r, details.ExternalID)
		if err != nil {
			return "", domain.Reservation{}, err
		}
		if !paid {
			return domain.OutcomeDuplicate, current, nil
		}
		c.logger.ErrorContext(ctx, "second payment for confirmed reservation",
			slog.String("tenant_id", tenant.ID),
			slog.String("reservation_id", reservationID),
			slog.String("session_id", details.ExternalID),
		)
		if _, err := c.quarantine(ctx, event, domain.ReviewDuplicatePayment, tenant, reservationID,
			"reservation was already paid through another checkout session; refund this payment"); err != nil {
			return "", domain.Reservation{}, err
		}
		return domain.OutcomeAnomaly, current, nil
	}

	c.logger.ErrorContext(ctx, "payment completed for released reservation",
		slog.String("tenant_id", tenant.ID),
		slog.String("reservation_id", reservationID),
		slog.String("session_id", details.ExternalID),
		slog.String("state", string(invalid.Current)),
	)
	if _, err := c.quarantine(ctx, event, domain.ReviewPaidReleasedSlot, tenant, reservationID,
		fmt.Sprintf("payment completed but reservation is %s; refund or rebook manually", invalid.Current)); err != nil {
		return "", domain.Reservation{}, err
	}
	return domain.OutcomeAnomaly, current, nil
}

// paidElsewhere reports whether another session already completed payment
// for the reservation.
func (c *Reconciler) paidElsewhere(ctx context.Context, tenant domain.Tenant, r domain.Reservation, sessionID string) (bool, error) {
	txs, err := c.ledger.ListForCustomer(ctx, tenant, r.CustomerID)
	if err != nil {
		return false, fmt.Errorf("listing transactions for reservation %s: %w", r.ID, err)
	}
	for _, tx := range txs {
		if tx.ReservationID == r.ID && tx.ExternalSessionID != sessionID && tx.Status == domain.TransactionCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (c *Reconciler) expire(ctx context.Context, tenant domain.Tenant, reservationID string, event domain.PaymentEvent) (domain.Outcome, error) {
	r, skip, err := c.releasable(ctx, tenant, reservationID, event)
	if err != nil {
		return "", err
	}
	if skip {
		return domain.OutcomeIgnored, nil
	}

	after, err := c.reservations.Expire(ctx, tenant, reservationID, ReasonSessionExpired)
	if err != nil {
		return "", err
	}
	return releaseOutcome(r, after, domain.ReservationExpired), nil
}

func (c *Reconciler) fail(ctx context.Context, tenant domain.Tenant, reservationID string, event domain.PaymentEvent) (domain.Outcome, error) {
	r, err := c.reservations.Get(ctx, tenant, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			c.logger.WarnContext(ctx, "payment failure for unknown reservation",
				slog.String("tenant_id", tenant.ID),
				slog.String("reservation_id", reservationID),
				slog.String("event_id", event.ID),
			)
			return domain.OutcomeIgnored, nil
		}
		return "", err
	}

	if _, err := c.record(ctx, tenant, r, event.Session, domain.TransactionFailed); err != nil {
		return "", err
	}

	r, skip, err := c.releasable(ctx, tenant, reservationID, event)
	if err != nil {
		return "", err
	}
	if skip {
		return domain.OutcomeIgnored, nil
	}

	after, err := c.reservations.Cancel(ctx, tenant, reservationID, ReasonPaymentFailed)
	if err != nil {
		return "", err
	}
	return releaseOutcome(r, after, domain.ReservationCancelled), nil
}

// releasable loads the reservation and reports whether a negative event for
// session must be skipped: the session already completed, or it was
// superseded by a newer checkout attempt.
func (c *Reconciler) releasable(ctx context.Context, tenant domain.Tenant, reservationID string, event domain.PaymentEvent) (domain.Reservation, bool, error) {
	sessionID := event.Session.ExternalID

	r, err := c.reservations.Get(ctx, tenant, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return domain.Reservation{}, true, nil
		}
		return domain.Reservation{}, false, err
	}

	tx, err := c.ledger.GetBySession(ctx, tenant, sessionID)
	switch {
	case err == nil && tx.Status == domain.TransactionCompleted:
		return r, true, nil
	case err != nil && !errors.Is(err, domain.ErrTransactionNotFound):
		return domain.Reservation{}, false, err
	}

	session, err := c.sessions.Get(ctx, tenant, sessionID)
	switch {
	case err == nil && !session.Active:
		c.logger.InfoContext(ctx, "ignoring event for superseded session",
			slog.String("tenant_id", tenant.ID),
			slog.String("reservation_id", reservationID),
			slog.String("session_id", sessionID),
		)
		return r, true, nil
	case err != nil && !errors.Is(err, domain.ErrSessionNotFound):
		return domain.Reservation{}, false, err
	}

	return r, false, nil
}

func releaseOutcome(before, after domain.Reservation, target domain.ReservationState) domain.Outcome {
	if before.State == domain.ReservationPending && after.State == target {
		return domain.OutcomeApplied
	}
	if before.State == target {
		return domain.OutcomeDuplicate
	}
	return domain.OutcomeIgnored
}

func (c *Reconciler) record(ctx context.Context, tenant domain.Tenant, r domain.Reservation, details domain.SessionDetails, status domain.TransactionStatus) (bool, error) {
	id, err := generateID()
	if err != nil {
		return false, fmt.Errorf("generating transaction id: %w", err)
	}

	amount := details.Amount
	if amount.Amount == 0 {
		amount = r.Price
	}

	customerID := details.Metadata[domain.MetaCustomerID]
	if customerID == "" {
		customerID = r.CustomerID
	}

	changed, err := c.ledger.Record(ctx, tenant, domain.Transaction{
		ID:                id,
		TenantID:          tenant.ID,
		ExternalSessionID: details.ExternalID,
		ReservationID:     r.ID,
		CustomerID:        customerID,
		PaymentIntent:     details.PaymentIntent,
		Amount:            amount,
		Status:            status,
		RecordedAt:        c.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("recording transaction for session %s: %w", details.ExternalID, err)
	}
	return changed, nil
}

// quarantine files a review item and acknowledges the event. The item id is
// derived from the event, or from the session for payment anomalies, so
// redelivery and the synchronous confirm path do not duplicate it.
func (c *Reconciler) quarantine(ctx context.Context, event domain.PaymentEvent, kind domain.ReviewKind, tenant domain.Tenant, reservationID, detail string) (domain.Outcome, error) {
	key := event.ID
	if paymentAnomaly(kind) || key == "" {
		key = event.Session.ExternalID
	}
	id := string(kind) + ":" + key
	if key == "" {
		generated, err := generateID()
		if err != nil {
			return "", fmt.Errorf("generating review item id: %w", err)
		}
		id = string(kind) + ":" + generated
	}

	item := domain.ReviewItem{
		ID:                id,
		Kind:              kind,
		TenantID:          tenant.ID,
		ReservationID:     reservationID,
		ExternalSessionID: event.Session.ExternalID,
		EventID:           event.ID,
		Detail:            detail,
		Payload:           event.Raw,
		CreatedAt:         c.now().UTC(),
	}
	if err := c.review.Flag(ctx, item); err != nil {
		return "", fmt.Errorf("filing review item: %w", err)
	}

	c.logger.WarnContext(ctx, "payment event quarantined",
		slog.String("kind", string(kind)),
		slog.String("tenant_id", tenant.ID),
		slog.String("reservation_id", reservationID),
		slog.String("session_id", event.Session.ExternalID),
		slog.String("event_id", event.ID),
		slog.String("detail", detail),
	)

	if paymentAnomaly(kind) {
		return domain.OutcomeAnomaly, nil
	}
	return domain.OutcomeQuarantined, nil
}

// paymentAnomaly reports kinds where money was taken and must be handed back
// or reconciled by an operator.
func paymentAnomaly(kind domain.ReviewKind) bool {
	return kind == domain.ReviewPaidReleasedSlot || kind == domain.ReviewDuplicatePayment
}
