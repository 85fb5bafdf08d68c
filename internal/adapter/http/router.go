package http

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// RouterConfig wires the inbound HTTP adapter.
type RouterConfig struct {
	Name               string
	Version            string
	Services           Services
	Resolver           Resolver
	TrustForwardedHost bool
	// HoldLimit throttles hold creation. Nil disables it.
	HoldLimit func(http.Handler) http.Handler
	Verifier  EventVerifier
	Processor EventProcessor
	Retries   domain.RetryQueue
	// Fake and FakeSigner enable the local checkout page of the fake gateway.
	Fake       FakeCheckout
	FakeSigner Signer
	Logger     *slog.Logger
}

// NewRouter builds the service's HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Name == "" {
		cfg.Name = "bookiq"
	}
	if cfg.HoldLimit == nil {
		cfg.HoldLimit = func(next http.Handler) http.Handler { return next }
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(cfg.Name, otelchi.WithChiRoutes(router)))

	// Processor callbacks carry no tenant host; routing comes from metadata.
	webhook := WebhookHandler(cfg.Verifier, cfg.Processor, cfg.Retries, cfg.Logger)
	router.Method(http.MethodPost, "/webhooks/payments", webhook)
	if cfg.Fake != nil && cfg.FakeSigner != nil {
		router.Method(http.MethodPost, "/fake-checkout/{id}", FakeCheckoutHandler(cfg.Fake, cfg.FakeSigner, webhook))
	}

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware(cfg.Resolver, cfg.TrustForwardedHost, cfg.Logger))
		r.Use(cfg.HoldLimit)

		api := humachi.New(r, huma.DefaultConfig(cfg.Name, cfg.Version))
		Register(api, cfg.Services)
	})

	return router
}
