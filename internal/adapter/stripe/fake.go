package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// FakeGateway is an in-memory gateway for local development. Sessions are
// paid or expired explicitly, and each transition yields the Stripe-shaped
// event payload a real endpoint would receive.
type FakeGateway struct {
	mu       sync.Mutex
	baseURL  string
	sessions map[string]*fakeSession
	now      func() time.Time
}

type fakeSession struct {
	object  sessionObject
	expires time.Time
}

var _ domain.PaymentGateway = (*FakeGateway)(nil)

// NewFakeGateway creates a fake whose checkout URLs live under baseURL.
func NewFakeGateway(baseURL string) *FakeGateway {
	return &FakeGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: make(map[string]*fakeSession),
		now:      time.Now,
	}
}

func (g *FakeGateway) CreateSession(_ context.Context, req domain.SessionRequest) (domain.PaymentSession, error) {
	id := "cs_fake_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	now := g.now().UTC()
	r := req.Reservation

	obj := sessionObject{
		ID:            id,
		URL:           g.baseURL + "/fake-checkout/" + id,
		Created:       now.Unix(),
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountTotal:   r.Price.Amount,
		Currency:      r.Price.Currency,
		Metadata: map[string]string{
			domain.MetaReservationID: r.ID,
			domain.MetaTenantID:      req.Tenant.ID,
			domain.MetaCustomerID:    r.CustomerID,
			domain.MetaTenantToken:   req.TenantToken,
		},
	}

	g.mu.Lock()
	g.sessions[id] = &fakeSession{object: obj, expires: req.ExpiresAt}
	g.mu.Unlock()

	return domain.PaymentSession{
		ExternalID:    id,
		ReservationID: r.ID,
		TenantID:      req.Tenant.ID,
		Amount:        r.Price,
		CheckoutURL:   obj.URL,
		CreatedAt:     now,
	}, nil
}

func (g *FakeGateway) VerifySession(_ context.Context, externalID string) (domain.SessionDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[externalID]
	if !ok {
		return domain.SessionDetails{}, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: "verify session"}
	}
	g.lapse(s)
	return s.object.details(), nil
}

// Pay marks the session paid and returns a checkout.session.completed payload.
func (g *FakeGateway) Pay(externalID string) ([]byte, error) {
	return g.transition(externalID, string(domain.EventCheckoutCompleted), func(o *sessionObject) {
		o.Status = "complete"
		o.PaymentStatus = "paid"
		o.PaymentIntent = "pi_" + strings.TrimPrefix(o.ID, "cs_")
	})
}

// Expire marks the session expired and returns a checkout.session.expired payload.
func (g *FakeGateway) Expire(externalID string) ([]byte, error) {
	return g.transition(externalID, string(domain.EventCheckoutExpired), func(o *sessionObject) {
		o.Status = "expired"
	})
}

// ExpireSession closes an open session without emitting an event, the way a
// processor-side expiry request is acknowledged.
func (g *FakeGateway) ExpireSession(_ context.Context, externalID string) error {
	_, err := g.transition(externalID, string(domain.EventCheckoutExpired), func(o *sessionObject) {
		o.Status = "expired"
	})
	return err
}

func (g *FakeGateway) transition(externalID, eventType string, apply func(*sessionObject)) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[externalID]
	if !ok {
		return nil, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: eventType}
	}
	if eventType == string(domain.EventCheckoutCompleted) {
		g.lapse(s)
	}
	if s.object.Status != "open" {
		return nil, &domain.GatewayError{Kind: domain.ErrProviderError, Op: eventType, Err: fmt.Errorf("session is %s", s.object.Status)}
	}
	apply(&s.object)

	return json.Marshal(map[string]any{
		"id":      "evt_fake_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"type":    eventType,
		"created": g.now().Unix(),
		"data":    map[string]any{"object": s.object},
	})
}

// lapse expires an open session whose deadline has passed.
func (g *FakeGateway) lapse(s *fakeSession) {
	if s.object.Status == "open" && !s.expires.IsZero() && g.now().After(s.expires) {
		s.object.Status = "expired"
	}
}
