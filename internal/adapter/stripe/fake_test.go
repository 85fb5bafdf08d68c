package stripe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/bookiq/internal/adapter/stripe"
	"github.com/neomorfeo/bookiq/internal/domain"
)

func TestFakeGateway_PayProducesVerifiableEvent(t *testing.T) {
	gw := stripe.NewFakeGateway("http://localhost:8080")
	ctx := context.Background()

	req := testRequest(time.Hour)
	req.ExpiresAt = time.Now().Add(time.Hour)
	session, err := gw.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	details, err := gw.VerifySession(ctx, session.ExternalID)
	if err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if details.Status != domain.SessionOpen {
		t.Errorf("Status = %q, want open", details.Status)
	}

	payload, err := gw.Pay(session.ExternalID)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	event, err := stripe.NewWebhookVerifier(whsec).Parse(payload, stripe.SignatureHeader(whsec, payload, time.Now()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if event.Type != domain.EventCheckoutCompleted || event.Session.Status != domain.SessionPaid {
		t.Errorf("event = %s/%s", event.Type, event.Session.Status)
	}
	if event.Session.Metadata[domain.MetaTenantToken] != "signed-token" {
		t.Errorf("metadata = %v", event.Session.Metadata)
	}

	if _, err := gw.Pay(session.ExternalID); !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("second Pay: expected ErrProviderError, got %v", err)
	}
}

func TestFakeGateway_LapsedSessionCannotBePaid(t *testing.T) {
	gw := stripe.NewFakeGateway("http://localhost:8080")
	req := testRequest(0)
	req.ExpiresAt = time.Now().Add(-time.Second)

	session, err := gw.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := gw.Pay(session.ExternalID); err == nil {
		t.Error("expected error paying a lapsed session")
	}
	details, err := gw.VerifySession(context.Background(), session.ExternalID)
	if err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if details.Status != domain.SessionExpired {
		t.Errorf("Status = %q, want expired", details.Status)
	}
}

func TestFakeGateway_UnknownSession(t *testing.T) {
	gw := stripe.NewFakeGateway("")
	if _, err := gw.VerifySession(context.Background(), "cs_missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestFakeGateway_ExpiredSessionCannotBePaid(t *testing.T) {
	gw := stripe.NewFakeGateway("http://localhost:8080")
	ctx := context.Background()
	req := testRequest(time.Hour)
	req.ExpiresAt = time.Now().Add(time.Hour)

	session, err := gw.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := gw.ExpireSession(ctx, session.ExternalID); err != nil {
		t.Fatalf("ExpireSession: %v", err)
	}

	details, _ := gw.VerifySession(ctx, session.ExternalID)
	if details.Status != domain.SessionExpired {
		t.Errorf("Status = %q, want expired", details.Status)
	}
	if _, err := gw.Pay(session.ExternalID); !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("Pay after expiry: expected ErrProviderError, got %v", err)
	}
}
