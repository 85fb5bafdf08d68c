package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"

	adapter "github.com/neomorfeo/bookiq/internal/adapter/otel"
	"github.com/neomorfeo/bookiq/internal/domain"
)

type stubProcessor struct {
	outcome domain.Outcome
	err     error
	flagged int
}

func (p *stubProcessor) Process(context.Context, domain.PaymentEvent) (domain.Outcome, error) {
	return p.outcome, p.err
}

func (p *stubProcessor) FlagExhausted(context.Context, domain.PaymentEvent, error) error {
	p.flagged++
	return nil
}

func testEvent() domain.PaymentEvent {
	return domain.PaymentEvent{
		ID:      "evt_1",
		Type:    domain.EventCheckoutCompleted,
		Session: domain.SessionDetails{ExternalID: "cs_1"},
	}
}

func TestTracingProcessor_Process_CountsOutcome(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	p := adapter.NewTracingProcessor(&stubProcessor{outcome: domain.OutcomeApplied})

	for range 2 {
		if _, err := p.Process(context.Background(), testEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	assertAttribute(t, spans[0], "event.outcome", "applied")
	assertAttribute(t, spans[0], "event.type", "checkout.session.completed")

	if got := counterValue(t, reader, "bookiq.webhook.outcomes", "outcome", "applied"); got != 2 {
		t.Errorf("applied outcomes = %d, want 2", got)
	}
}

func TestTracingProcessor_Process_RetryableError(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	p := adapter.NewTracingProcessor(&stubProcessor{err: errors.New("database is locked")})

	if _, err := p.Process(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if got := counterValue(t, reader, "bookiq.webhook.outcomes", "outcome", "retry"); got != 1 {
		t.Errorf("retry outcomes = %d, want 1", got)
	}
}

func TestTracingProcessor_FlagExhausted_Delegates(t *testing.T) {
	setupTestTracer(t)
	inner := &stubProcessor{}
	p := adapter.NewTracingProcessor(inner)

	if err := p.FlagExhausted(context.Background(), testEvent(), errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.flagged != 1 {
		t.Errorf("flagged = %d, want 1", inner.flagged)
	}
}
