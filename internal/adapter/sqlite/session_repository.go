package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: SessionRepository implements domain.SessionRepository.
var _ domain.SessionRepository = (*SessionRepository)(nil)

// SessionRepository implements domain.SessionRepository using SQLite.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns a session repository backed by d.
func NewSessionRepository(d *DB) *SessionRepository {
	return &SessionRepository{db: d.db}
}

const sessionColumns = `external_id, tenant_id, reservation_id, amount, currency, checkout_url, active, created_at`

// Activate stores session as the reservation's active session. Any previously
// active session for the same reservation is kept but marked inactive.
func (r *SessionRepository) Activate(ctx context.Context, tenant domain.Tenant, session domain.PaymentSession) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE payment_sessions SET active = 0
			 WHERE tenant_id = ? AND reservation_id = ? AND active = 1`,
			tenant.ID, session.ReservationID,
		)
		if err != nil {
			return fmt.Errorf("deactivating sessions: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_sessions (`+sessionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			session.ExternalID, tenant.ID, session.ReservationID,
			session.Amount.Amount, session.Amount.Currency, session.CheckoutURL,
			formatTime(session.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		return nil
	})
}

func (r *SessionRepository) Get(ctx context.Context, tenant domain.Tenant, externalID string) (domain.PaymentSession, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE tenant_id = ? AND external_id = ?`,
		tenant.ID, externalID,
	))
}

func (r *SessionRepository) ActiveFor(ctx context.Context, tenant domain.Tenant, reservationID string) (domain.PaymentSession, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions
		 WHERE tenant_id = ? AND reservation_id = ? AND active = 1`,
		tenant.ID, reservationID,
	))
}

func scanSession(row rowScanner) (domain.PaymentSession, error) {
	var s domain.PaymentSession
	var active int
	var createdAt string

	err := row.Scan(&s.ExternalID, &s.TenantID, &s.ReservationID, &s.Amount.Amount,
		&s.Amount.Currency, &s.CheckoutURL, &active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentSession{}, domain.ErrSessionNotFound
		}
		return domain.PaymentSession{}, fmt.Errorf("scanning session: %w", err)
	}

	s.Active = active == 1
	s.CreatedAt = parseTime(createdAt)
	return s, nil
}
