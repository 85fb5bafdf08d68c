package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: TenantRepository implements domain.TenantRepository.
var _ domain.TenantRepository = (*TenantRepository)(nil)

// TenantRepository implements domain.TenantRepository using SQLite.
type TenantRepository struct {
	db *sql.DB
}

// NewTenantRepository returns a tenant repository backed by d.
func NewTenantRepository(d *DB) *TenantRepository {
	return &TenantRepository{db: d.db}
}

const tenantColumns = `t.id, t.name, t.routing_key, t.status, t.is_public, t.created_at, t.updated_at`

func (r *TenantRepository) Create(ctx context.Context, t domain.Tenant) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tenants (id, name, routing_key, status, is_public, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.RoutingKey, string(t.Status), boolToInt(t.Public),
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting tenant: %w", err)
		}

		if t.RoutingKey == "" {
			return nil
		}
		return insertRoutingKey(ctx, tx, t.ID, t.RoutingKey, true)
	})
}

func (r *TenantRepository) AddRoutingKey(ctx context.Context, tenantID, routingKey string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertRoutingKey(ctx, tx, tenantID, routingKey, false)
	})
}

func insertRoutingKey(ctx context.Context, tx *sql.Tx, tenantID, routingKey string, primary bool) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tenant_routing_keys (routing_key, tenant_id, is_primary) VALUES (?, ?, ?)`,
		routingKey, tenantID, boolToInt(primary),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: %q", domain.ErrRoutingKeyConflict, routingKey)
		case isForeignKeyViolation(err):
			return domain.ErrTenantNotFound
		}
		return fmt.Errorf("inserting routing key: %w", err)
	}
	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants t WHERE t.id = ?`, id,
	))
}

func (r *TenantRepository) GetByRoutingKey(ctx context.Context, routingKey string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenant_routing_keys k JOIN tenants t ON t.id = k.tenant_id
		 WHERE k.routing_key = ?`, routingKey,
	))
}

func (r *TenantRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants t WHERE t.is_public = 0`
	var args []any

	if filter.Status != nil {
		query += ` AND t.status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY t.created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (r *TenantRepository) Update(ctx context.Context, t domain.Tenant) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET name = ?, status = ?, updated_at = ? WHERE id = ?`,
		t.Name, string(t.Status), formatTime(time.Now()), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status, createdAt, updatedAt string
	var public int

	err := row.Scan(&t.ID, &t.Name, &t.RoutingKey, &status, &public, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = domain.Status(status)
	t.Public = public == 1
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)

	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
