package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

var (
	clinicA = domain.NewTenant("clinic-a", "Clinic A", "a.example.com")
	clinicB = domain.NewTenant("clinic-b", "Clinic B", "b.example.com")

	slot7 = domain.Slot{ProviderID: "7", Date: "2025-01-10", Start: "10:00"}
	fee   = domain.Money{Amount: 4500, Currency: "usd"}
)

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock        *testClock
	tenants      *mockTenantRepo
	reservations *memReservations
	sessions     *memSessions
	ledger       *memLedger
	review       *memReview
	fees         memFees
	publisher    *mockPublisher
	gateway      *stubGateway

	resolver   *app.TenantResolver
	manager    *app.ReservationManager
	reconciler *app.Reconciler
	booking    *app.BookingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:        &testClock{now: time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)},
		tenants:      newMockTenantRepo(clinicA, clinicB),
		reservations: newMemReservations(),
		sessions:     newMemSessions(),
		ledger:       newMemLedger(),
		review:       newMemReview(),
		fees:         memFees{},
		publisher:    &mockPublisher{},
		gateway:      &stubGateway{verified: make(map[string]domain.SessionDetails)},
	}

	for _, tenant := range []domain.Tenant{clinicA, clinicB} {
		_ = h.fees.SetFee(context.Background(), tenant, slot7.ProviderID, fee)
	}

	h.resolver = app.NewTenantResolver(h.tenants, fakeTokens{}, "", nil)
	h.manager = app.NewReservationManager(h.reservations, tableValidator{}, h.publisher,
		app.WithClock(h.clock.Now),
		app.WithAbandonAfter(15*time.Minute),
	)
	h.reconciler = app.NewReconciler(h.resolver, h.manager, h.sessions, h.ledger, h.review, nil)
	h.booking = app.NewBookingService(app.BookingDeps{
		Reservations: h.manager,
		Listing:      h.reservations,
		Reconciler:   h.reconciler,
		Fees:         h.fees,
		Sessions:     h.sessions,
		Ledger:       h.ledger,
		Gateway:      h.gateway,
		Tokens:       fakeTokens{},
	})
	return h
}

// checkout runs a successful checkout for customer on slot7.
func (h *harness) checkout(t *testing.T, tenant domain.Tenant, customer string) app.Checkout {
	t.Helper()
	co, err := h.booking.Checkout(context.Background(), tenant, slot7, customer)
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	return co
}

// completedEvent builds the processor callback for a paid checkout.
func (h *harness) completedEvent(eventID string, co app.Checkout) domain.PaymentEvent {
	return h.sessionEvent(eventID, domain.EventCheckoutCompleted, domain.SessionPaid, co)
}

func (h *harness) sessionEvent(eventID string, typ domain.PaymentEventType, status domain.SessionStatus, co app.Checkout) domain.PaymentEvent {
	req := h.gateway.requestFor(co.Session.ExternalID)
	return domain.PaymentEvent{
		ID:   eventID,
		Type: typ,
		Session: domain.SessionDetails{
			ExternalID:    co.Session.ExternalID,
			Status:        status,
			Amount:        co.Reservation.Price,
			PaymentIntent: "pi_" + co.Session.ExternalID,
			Metadata: map[string]string{
				domain.MetaReservationID: co.Reservation.ID,
				domain.MetaTenantID:      co.Reservation.TenantID,
				domain.MetaCustomerID:    co.Reservation.CustomerID,
				domain.MetaTenantToken:   req.TenantToken,
			},
		},
		Raw: []byte(`{"id":"` + eventID + `"}`),
	}
}

func (h *harness) state(t *testing.T, tenant domain.Tenant, id string) domain.ReservationState {
	t.Helper()
	r, err := h.reservations.Get(context.Background(), tenant, id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return r.State
}
