package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// TenantResolver maps inbound identities to tenant partitions. It never
// holds a current tenant: callers receive a domain.Tenant and pass it
// explicitly to every subsequent call.
type TenantResolver struct {
	repo     domain.TenantRepository
	tokens   domain.TokenIssuer
	publicID string
	logger   *slog.Logger
}

// NewTenantResolver creates a resolver. publicID names the fallback tenant
// used for unknown hosts.
func NewTenantResolver(repo domain.TenantRepository, tokens domain.TokenIssuer, publicID string, logger *slog.Logger) *TenantResolver {
	if publicID == "" {
		publicID = domain.DefaultPublicTenantID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantResolver{
		repo:     repo,
		tokens:   tokens,
		publicID: publicID,
		logger:   logger,
	}
}

// Resolve returns the tenant mapped to host. Unknown hosts fall back to the
// public tenant; the fallback is logged so misrouted domains can be alerted
// on. An error is returned only when the public tenant itself cannot be read.
func (r *TenantResolver) Resolve(ctx context.Context, host string) (domain.Tenant, error) {
	key := NormalizeHost(host)

	if key != "" {
		tenant, err := r.repo.GetByRoutingKey(ctx, key)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, domain.ErrTenantNotFound) {
			return domain.Tenant{}, fmt.Errorf("resolving host %q: %w", key, err)
		}
	}

	r.logger.WarnContext(ctx, "unknown host, using public tenant",
		slog.String("host", key),
		slog.String("tenant_id", r.publicID),
	)

	tenant, err := r.repo.GetByID(ctx, r.publicID)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("loading public tenant: %w", err)
	}
	tenant.Public = true
	return tenant, nil
}

// ResolveByOpaqueToken verifies a signed tenant token and loads the tenant it
// names. Any failure, including a bad signature or a deleted tenant, is
// reported as domain.ErrTenantNotFound.
func (r *TenantResolver) ResolveByOpaqueToken(ctx context.Context, token string) (domain.Tenant, domain.TenantReference, error) {
	if token == "" {
		return domain.Tenant{}, domain.TenantReference{}, fmt.Errorf("%w: missing tenant token", domain.ErrTenantNotFound)
	}

	ref, err := r.tokens.Parse(token)
	if err != nil {
		return domain.Tenant{}, domain.TenantReference{}, fmt.Errorf("%w: %v", domain.ErrTenantNotFound, err)
	}

	tenant, err := r.repo.GetByID(ctx, ref.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return domain.Tenant{}, domain.TenantReference{}, fmt.Errorf("%w: %s", domain.ErrTenantNotFound, ref.TenantID)
		}
		return domain.Tenant{}, domain.TenantReference{}, err
	}
	if tenant.Public {
		return domain.Tenant{}, domain.TenantReference{}, fmt.Errorf("%w: token names the public tenant", domain.ErrTenantNotFound)
	}

	return tenant, ref, nil
}
