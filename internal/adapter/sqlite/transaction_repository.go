package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: TransactionRepository implements domain.TransactionLedger.
var _ domain.TransactionLedger = (*TransactionRepository)(nil)

// TransactionRepository implements domain.TransactionLedger using SQLite.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns a transaction ledger backed by d.
func NewTransactionRepository(d *DB) *TransactionRepository {
	return &TransactionRepository{db: d.db}
}

const transactionColumns = `id, tenant_id, external_session_id, reservation_id, customer_id,
	payment_intent, amount, currency, status, recorded_at`

// Record upserts tx keyed on its external session id. A stored failed
// transaction is upgraded by a completed one; nothing else overwrites.
func (r *TransactionRepository) Record(ctx context.Context, tenant domain.Tenant, tx domain.Transaction) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_session_id) DO UPDATE SET
		     status = excluded.status,
		     payment_intent = excluded.payment_intent,
		     amount = excluded.amount,
		     currency = excluded.currency,
		     recorded_at = excluded.recorded_at
		 WHERE transactions.tenant_id = excluded.tenant_id
		   AND transactions.status = 'failed'
		   AND excluded.status = 'completed'`,
		tx.ID, tenant.ID, tx.ExternalSessionID, tx.ReservationID, tx.CustomerID,
		tx.PaymentIntent, tx.Amount.Amount, tx.Amount.Currency, string(tx.Status),
		formatTime(tx.RecordedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, domain.ErrTenantNotFound
		}
		return false, fmt.Errorf("recording transaction: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *TransactionRepository) GetBySession(ctx context.Context, tenant domain.Tenant, externalSessionID string) (domain.Transaction, error) {
	return scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE tenant_id = ? AND external_session_id = ?`,
		tenant.ID, externalSessionID,
	))
}

func (r *TransactionRepository) ListForCustomer(ctx context.Context, tenant domain.Tenant, customerID string) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE tenant_id = ? AND customer_id = ?
		 ORDER BY recorded_at DESC, id DESC`,
		tenant.ID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	var status, recordedAt string

	err := row.Scan(&t.ID, &t.TenantID, &t.ExternalSessionID, &t.ReservationID, &t.CustomerID,
		&t.PaymentIntent, &t.Amount.Amount, &t.Amount.Currency, &status, &recordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("scanning transaction: %w", err)
	}

	t.Status = domain.TransactionStatus(status)
	t.RecordedAt = parseTime(recordedAt)
	return t, nil
}
