package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/bookiq/internal/adapter/amqp"
	"github.com/neomorfeo/bookiq/internal/adapter/fsm"
	"github.com/neomorfeo/bookiq/internal/adapter/otel"
	"github.com/neomorfeo/bookiq/internal/adapter/ratelimit"
	riveradapter "github.com/neomorfeo/bookiq/internal/adapter/river"
	"github.com/neomorfeo/bookiq/internal/adapter/sqlite"
	"github.com/neomorfeo/bookiq/internal/adapter/stripe"
	"github.com/neomorfeo/bookiq/internal/adapter/token"
	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/config"
	"github.com/neomorfeo/bookiq/internal/domain"

	handler "github.com/neomorfeo/bookiq/internal/adapter/http"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bookiq stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains the server and workers.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// --- Observability ---
	providers, err := otel.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", slog.Any("error", err))
		}
	}()

	srv, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	// Jobs drain through Stop below, not through cancellation.
	if err := srv.jobs.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bookiq listening",
			slog.String("addr", httpServer.Addr),
			slog.String("gateway", cfg.Gateway),
			slog.String("event_sink", cfg.EventSink),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return errors.Join(
			httpServer.Shutdown(shutdownCtx),
			srv.jobs.Stop(shutdownCtx),
		)
	})

	return g.Wait()
}

// server is the fully wired application. close releases everything build
// opened, in reverse order.
type server struct {
	handler http.Handler
	jobs    *riveradapter.Client
	closers []func() error
}

func (s *server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// build wires adapters, application services and the HTTP router.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			_ = srv.close()
		}
	}()

	// --- Adapters (out) ---
	sqlDB, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	db, err := sqlite.NewFromDB(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	srv.closers = append(srv.closers, db.Close)

	tenantRepo := sqlite.NewTenantRepository(db)
	if err := ensurePublicTenant(ctx, tenantRepo, cfg.PublicTenantID); err != nil {
		return nil, err
	}
	sessions := sqlite.NewSessionRepository(db)
	ledger := sqlite.NewTransactionRepository(db)
	review := sqlite.NewReviewRepository(db)
	fees := sqlite.NewFeeRepository(db)
	reservationRepo := sqlite.NewReservationRepository(db)
	reservations := otel.NewTracingReservationRepository(reservationRepo)

	tokens := token.NewIssuer(cfg.TokenSecret, cfg.TokenTTL)

	var (
		gateway domain.PaymentGateway
		fake    *stripe.FakeGateway
	)
	webhookSecret := cfg.Stripe.WebhookSecret
	switch cfg.Gateway {
	case "stripe":
		gateway = stripe.NewClient(stripe.Config{
			SecretKey:  cfg.Stripe.SecretKey,
			BaseURL:    cfg.Stripe.BaseURL,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, stripe.WithLogger(logger))
	default:
		fake = stripe.NewFakeGateway("http://localhost:" + cfg.Port)
		gateway = fake
		if webhookSecret == "" {
			webhookSecret = "whsec_local_" + uuid.NewString()
		}
	}
	gateway = otel.NewTracingGateway(gateway)

	// River needs the reconciler for retries, and the reconciler publishes
	// through River; the worker is bound once both exist.
	reconcileWorker := riveradapter.NewReconcileWorker(logger)
	jobs, err := riveradapter.Setup(ctx, db.SQL(), reconcileWorker, logger)
	if err != nil {
		return nil, fmt.Errorf("river: %w", err)
	}
	srv.jobs = jobs

	var publisher domain.EventPublisher = riveradapter.NewPublisher(jobs)
	if cfg.EventSink == "amqp" {
		broker, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		srv.closers = append(srv.closers, broker.Close)
		publisher = broker
	}
	publisher = otel.NewTracingPublisher(publisher)

	// --- Application ---
	resolver := app.NewTenantResolver(tenantRepo, tokens, cfg.PublicTenantID, logger)
	manager := app.NewReservationManager(reservations, fsm.NewReservationValidator(), publisher,
		app.WithAbandonAfter(cfg.AbandonAfter),
		app.WithLogger(logger),
	)
	reconciler := app.NewReconciler(resolver, manager, sessions, ledger, review, logger)
	processor := otel.NewTracingProcessor(reconciler)
	reconcileWorker.Bind(processor)

	services := handler.Services{
		Tenants: app.NewTenantService(tenantRepo, fsm.New(), logger),
		Bookings: app.NewBookingService(app.BookingDeps{
			Reservations: manager,
			Listing:      reservationRepo,
			Reconciler:   reconciler,
			Fees:         fees,
			Sessions:     sessions,
			Ledger:       ledger,
			Gateway:      gateway,
			Tokens:       tokens,
			Logger:       logger,
		}),
		Review:         app.NewReviewService(review),
		Fees:           fees,
		PublishableKey: cfg.Stripe.PublishableKey,
	}

	holdLimit := ratelimit.Passthrough
	if cfg.RateLimit.Enabled && cfg.RateLimit.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		srv.closers = append(srv.closers, rdb.Close)
		limiter := ratelimit.New(rdb, ratelimit.Config{
			Capacity:       cfg.RateLimit.Capacity,
			RefillTokens:   cfg.RateLimit.RefillTokens,
			RefillInterval: cfg.RateLimit.RefillInterval,
		}, ratelimit.WithLogger(logger))
		holdLimit = limiter.Middleware(handler.HoldRateKey)
	} else if cfg.RateLimit.Enabled {
		logger.Warn("REDIS_ADDR not set, hold rate limiting disabled")
	}

	// --- Adapters (in) ---
	routerCfg := handler.RouterConfig{
		Name:               cfg.Telemetry.ServiceName,
		Version:            version,
		Services:           services,
		Resolver:           resolver,
		TrustForwardedHost: cfg.TrustForwardedHost,
		HoldLimit:          holdLimit,
		Verifier:           stripe.NewWebhookVerifier(webhookSecret),
		Processor:          processor,
		Retries:            riveradapter.NewRetryQueue(jobs, cfg.RetryAttempts),
		Logger:             logger,
	}
	if fake != nil {
		routerCfg.Fake = fake
		routerCfg.FakeSigner = func(payload []byte, at time.Time) string {
			return stripe.SignatureHeader(webhookSecret, payload, at)
		}
	}
	srv.handler = handler.NewRouter(routerCfg)

	return srv, nil
}

// ensurePublicTenant creates the fallback partition when it is configured
// under an id the migrations did not seed.
func ensurePublicTenant(ctx context.Context, repo domain.TenantRepository, id string) error {
	if id == "" {
		id = domain.DefaultPublicTenantID
	}
	_, err := repo.GetByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrTenantNotFound) {
		return fmt.Errorf("loading public tenant: %w", err)
	}

	public := domain.NewTenant(id, "Public", "")
	public.Public = true
	if err := repo.Create(ctx, public); err != nil {
		return fmt.Errorf("creating public tenant: %w", err)
	}
	return nil
}
