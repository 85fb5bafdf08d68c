package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: ReviewRepository implements domain.ReviewQueue.
var _ domain.ReviewQueue = (*ReviewRepository)(nil)

// ReviewRepository stores quarantined events and anomalies. It is not
// partitioned by tenant: items are often filed before a tenant is known.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(d *DB) *ReviewRepository {
	return &ReviewRepository{db: d.db}
}

const reviewColumns = `id, kind, tenant_id, reservation_id, external_session_id, event_id,
	detail, payload, created_at, resolved_at`

// Flag files an item. Filing an id that already exists is a no-op, so
// redelivered events do not pile up duplicate items.
func (r *ReviewRepository) Flag(ctx context.Context, item domain.ReviewItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO review_items (`+reviewColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (id) DO NOTHING`,
		item.ID, string(item.Kind), item.TenantID, item.ReservationID,
		item.ExternalSessionID, item.EventID, item.Detail, item.Payload,
		formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("flagging review item: %w", err)
	}
	return nil
}

// List returns review items oldest first.
func (r *ReviewRepository) List(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE 1 = 1`
	var args []any

	if !filter.IncludeResolved {
		query += ` AND resolved_at IS NULL`
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*filter.Kind))
	}

	query += ` ORDER BY created_at ASC, id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing review items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReviewItem
	for rows.Next() {
		var item domain.ReviewItem
		var kind, createdAt string
		var resolvedAt sql.NullString

		err := rows.Scan(&item.ID, &kind, &item.TenantID, &item.ReservationID,
			&item.ExternalSessionID, &item.EventID, &item.Detail, &item.Payload,
			&createdAt, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning review item: %w", err)
		}

		item.Kind = domain.ReviewKind(kind)
		item.CreatedAt = parseTime(createdAt)
		if resolvedAt.Valid {
			at := parseTime(resolvedAt.String)
			item.ResolvedAt = &at
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Resolve marks an item as handled. Resolving twice keeps the first time.
func (r *ReviewRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE review_items SET resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("resolving review item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrReviewItemNotFound
	}
	return nil
}
