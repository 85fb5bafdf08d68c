package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"

	adapter "github.com/neomorfeo/bookiq/internal/adapter/otel"
	"github.com/neomorfeo/bookiq/internal/domain"
)

type stubGateway struct {
	err error
}

func (g *stubGateway) CreateSession(_ context.Context, req domain.SessionRequest) (domain.PaymentSession, error) {
	if g.err != nil {
		return domain.PaymentSession{}, g.err
	}
	return domain.PaymentSession{ExternalID: "cs_1", ReservationID: req.Reservation.ID, TenantID: req.Tenant.ID}, nil
}

func (g *stubGateway) VerifySession(_ context.Context, id string) (domain.SessionDetails, error) {
	if g.err != nil {
		return domain.SessionDetails{}, g.err
	}
	return domain.SessionDetails{ExternalID: id, Status: domain.SessionPaid}, nil
}

func (g *stubGateway) ExpireSession(context.Context, string) error { return g.err }

func TestTracingGateway_CreateSession_RecordsSessionID(t *testing.T) {
	exporter := setupTestTracer(t)
	gw := adapter.NewTracingGateway(&stubGateway{})

	req := domain.SessionRequest{Reservation: testReservation(), Tenant: testTenant}
	if _, err := gw.CreateSession(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	assertAttribute(t, spans[0], "payment.session_id", "cs_1")
	assertAttribute(t, spans[0], "payment.amount", "4500")
}

func TestTracingGateway_VerifySession_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	gw := adapter.NewTracingGateway(&stubGateway{
		err: &domain.GatewayError{Kind: domain.ErrGatewayUnavailable, Op: "verify"},
	})

	_, err := gw.VerifySession(context.Background(), "cs_1")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
}

func TestTracingGateway_ExpireSession(t *testing.T) {
	exporter := setupTestTracer(t)
	gw := adapter.NewTracingGateway(&stubGateway{})

	if err := gw.ExpireSession(context.Background(), "cs_old"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "PaymentGateway.ExpireSession" {
		t.Fatalf("spans = %+v", spans)
	}
	assertAttribute(t, spans[0], "payment.session_id", "cs_old")
}
