package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/neomorfeo/bookiq/internal/domain"
)

type tenantKey struct{}

// Resolver maps a request host to its tenant.
type Resolver interface {
	Resolve(ctx context.Context, host string) (domain.Tenant, error)
}

// TenantMiddleware resolves the tenant for every request from its host and
// stores it in the request context. With trustForwarded set, the first
// X-Forwarded-Host value wins over Host.
func TenantMiddleware(resolver Resolver, trustForwarded bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if trustForwarded {
				if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
					host, _, _ = strings.Cut(fwd, ",")
					host = strings.TrimSpace(host)
				}
			}

			tenant, err := resolver.Resolve(r.Context(), host)
			if err != nil {
				logger.ErrorContext(r.Context(), "tenant resolution failed",
					slog.String("host", host),
					slog.Any("error", err),
				)
				writeProblem(w, http.StatusInternalServerError, "tenant resolution failed")
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFrom returns the tenant bound by TenantMiddleware. Requests that
// bypassed the middleware get the zero tenant, which refuses every
// tenant-scoped operation.
func TenantFrom(ctx context.Context) domain.Tenant {
	t, _ := ctx.Value(tenantKey{}).(domain.Tenant)
	return t
}

// CustomerHeader carries the customer id asserted by the upstream identity
// service.
const CustomerHeader = "X-Customer-ID"

// HoldRateKey keys the hold rate limiter by tenant and customer. Only
// reservation creation and checkout retries are limited.
func HoldRateKey(r *http.Request) (string, bool) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/api/v1/reservations") {
		return "", false
	}
	if strings.HasSuffix(r.URL.Path, "/cancel") {
		return "", false
	}
	customer := r.Header.Get(CustomerHeader)
	if customer == "" {
		return "", false
	}
	return TenantFrom(r.Context()).ID + ":" + customer, true
}
