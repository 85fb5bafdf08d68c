package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: FeeRepository implements domain.FeeSchedule.
var _ domain.FeeSchedule = (*FeeRepository)(nil)

// FeeRepository stores per-provider consultation fees.
type FeeRepository struct {
	db *sql.DB
}

func NewFeeRepository(d *DB) *FeeRepository {
	return &FeeRepository{db: d.db}
}

func (r *FeeRepository) Fee(ctx context.Context, tenant domain.Tenant, providerID string) (domain.Money, error) {
	var m domain.Money
	err := r.db.QueryRowContext(ctx,
		`SELECT amount, currency FROM provider_fees WHERE tenant_id = ? AND provider_id = ?`,
		tenant.ID, providerID,
	).Scan(&m.Amount, &m.Currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Money{}, domain.ErrFeeNotConfigured
		}
		return domain.Money{}, fmt.Errorf("reading fee: %w", err)
	}
	return m, nil
}

func (r *FeeRepository) SetFee(ctx context.Context, tenant domain.Tenant, providerID string, fee domain.Money) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provider_fees (tenant_id, provider_id, amount, currency) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, provider_id) DO UPDATE SET amount = excluded.amount, currency = excluded.currency`,
		tenant.ID, providerID, fee.Amount, fee.Currency,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrTenantNotFound
		}
		return fmt.Errorf("setting fee: %w", err)
	}
	return nil
}
