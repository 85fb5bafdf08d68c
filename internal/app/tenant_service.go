package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// TenantService orchestrates tenant provisioning and lifecycle operations.
type TenantService struct {
	repo      domain.TenantRepository
	validator domain.TransitionValidator
	logger    *slog.Logger
}

// NewTenantService creates a service with the given adapters.
func NewTenantService(repo domain.TenantRepository, validator domain.TransitionValidator, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

// Create provisions an active tenant reachable at routingKey.
func (s *TenantService) Create(ctx context.Context, name, routingKey string) (domain.Tenant, error) {
	id, err := generateID()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("generating tenant id: %w", err)
	}
	return s.CreateWithID(ctx, id, name, routingKey)
}

// CreateWithID provisions a tenant with a caller-chosen identifier. Seed
// files use it so tenant ids stay stable across environments.
func (s *TenantService) CreateWithID(ctx context.Context, id, name, routingKey string) (domain.Tenant, error) {
	tenant := domain.NewTenant(id, name, NormalizeHost(routingKey))

	if err := s.repo.Create(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("creating tenant: %w", err)
	}

	s.logger.InfoContext(ctx, "tenant provisioned",
		slog.String("tenant_id", tenant.ID),
		slog.String("routing_key", tenant.RoutingKey),
	)
	return tenant, nil
}

// AddRoutingKey maps an additional host to an existing tenant.
func (s *TenantService) AddRoutingKey(ctx context.Context, id, routingKey string) error {
	key := NormalizeHost(routingKey)
	if key == "" {
		return fmt.Errorf("%w: empty routing key", domain.ErrRoutingKeyConflict)
	}
	return s.repo.AddRoutingKey(ctx, id, key)
}

// GetByID returns a tenant by its unique identifier.
func (s *TenantService) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tenants matching the given filter.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}

// Transition applies a lifecycle event to a tenant, changing its state.
func (s *TenantService) Transition(ctx context.Context, id string, event domain.Event) (domain.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant.Public {
		return domain.Tenant{}, domain.ErrNoTenantScope
	}

	newStatus, err := s.validator.Apply(ctx, tenant.Status, event)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant.Status = newStatus

	if err := s.repo.Update(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}

	s.logger.InfoContext(ctx, "tenant transitioned",
		slog.String("tenant_id", tenant.ID),
		slog.String("event", string(event)),
		slog.String("status", string(tenant.Status)),
	)
	return tenant, nil
}

// NormalizeHost lower-cases a host and strips any port.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
