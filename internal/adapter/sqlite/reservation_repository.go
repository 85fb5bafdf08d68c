package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: ReservationRepository implements domain.ReservationRepository.
var _ domain.ReservationRepository = (*ReservationRepository)(nil)

// AbandonedReason is recorded on holds expired lazily by CreateHold.
const AbandonedReason = "abandoned"

// ReservationRepository implements domain.ReservationRepository using SQLite.
// The live-slot partial unique index is the arbiter of concurrent holds.
type ReservationRepository struct {
	db *sql.DB
}

// NewReservationRepository returns a reservation repository backed by d.
func NewReservationRepository(d *DB) *ReservationRepository {
	return &ReservationRepository{db: d.db}
}

const reservationColumns = `tenant_id, id, provider_id, slot_date, slot_start, customer_id, state,
	price_amount, price_currency, cancel_reason, created_at, updated_at`

func (r *ReservationRepository) CreateHold(ctx context.Context, tenant domain.Tenant, res domain.Reservation, abandonedBefore time.Time) ([]domain.Reservation, error) {
	var expired []domain.Reservation

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// A hold whose payment is already recorded is awaiting confirmation,
		// not abandoned.
		rows, err := tx.QueryContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations
			 WHERE tenant_id = ? AND provider_id = ? AND slot_date = ? AND slot_start = ?
			   AND state = ? AND created_at <= ?
			   AND NOT EXISTS (
			     SELECT 1 FROM transactions t
			     WHERE t.tenant_id = reservations.tenant_id
			       AND t.reservation_id = reservations.id
			       AND t.status = ?)`,
			tenant.ID, res.Slot.ProviderID, res.Slot.Date, res.Slot.Start,
			string(domain.ReservationPending), formatTime(abandonedBefore),
			string(domain.TransactionCompleted),
		)
		if err != nil {
			return fmt.Errorf("finding abandoned holds: %w", err)
		}
		stale, err := collectReservations(rows)
		if err != nil {
			return err
		}

		now := formatTime(res.CreatedAt)
		for _, s := range stale {
			_, err := tx.ExecContext(ctx,
				`UPDATE reservations SET state = ?, cancel_reason = ?, updated_at = ?
				 WHERE tenant_id = ? AND id = ? AND state = ?`,
				string(domain.ReservationExpired), AbandonedReason, now,
				tenant.ID, s.ID, string(domain.ReservationPending),
			)
			if err != nil {
				return fmt.Errorf("expiring abandoned hold %s: %w", s.ID, err)
			}
			s.State = domain.ReservationExpired
			s.CancelReason = AbandonedReason
			s.UpdatedAt = res.CreatedAt.UTC()
			expired = append(expired, s)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO reservations (`+reservationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tenant.ID, res.ID, res.Slot.ProviderID, res.Slot.Date, res.Slot.Start,
			res.CustomerID, string(res.State), res.Price.Amount, res.Price.Currency,
			res.CancelReason, formatTime(res.CreatedAt), formatTime(res.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &domain.SlotConflictError{Slot: res.Slot}
			}
			if isForeignKeyViolation(err) {
				return domain.ErrTenantNotFound
			}
			return fmt.Errorf("inserting reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return expired, nil
}

func (r *ReservationRepository) Get(ctx context.Context, tenant domain.Tenant, id string) (domain.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE tenant_id = ? AND id = ?`,
		tenant.ID, id,
	)
	return scanReservation(row)
}

func (r *ReservationRepository) UpdateState(ctx context.Context, tenant domain.Tenant, id string, from, to domain.ReservationState, reason string, at time.Time) (domain.Reservation, error) {
	var out domain.Reservation

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE reservations SET state = ?, cancel_reason = ?, updated_at = ?
			 WHERE tenant_id = ? AND id = ? AND state = ?`,
			string(to), reason, formatTime(at), tenant.ID, id, string(from),
		)
		if err != nil {
			return fmt.Errorf("updating reservation state: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}

		out, err = scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE tenant_id = ? AND id = ?`,
			tenant.ID, id,
		))
		if err != nil {
			return err
		}

		if n == 0 {
			return domain.ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrConcurrentUpdate) {
		return domain.Reservation{}, err
	}

	return out, err
}

// ListForCustomer returns the customer's reservations, newest first.
func (r *ReservationRepository) ListForCustomer(ctx context.Context, tenant domain.Tenant, customerID string) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE tenant_id = ? AND customer_id = ?
		 ORDER BY created_at DESC, id DESC`,
		tenant.ID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var res domain.Reservation
	var state, createdAt, updatedAt string

	err := row.Scan(
		&res.TenantID, &res.ID, &res.Slot.ProviderID, &res.Slot.Date, &res.Slot.Start,
		&res.CustomerID, &state, &res.Price.Amount, &res.Price.Currency,
		&res.CancelReason, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("scanning reservation: %w", err)
	}

	res.State = domain.ReservationState(state)
	res.CreatedAt = parseTime(createdAt)
	res.UpdatedAt = parseTime(updatedAt)

	return res, nil
}
