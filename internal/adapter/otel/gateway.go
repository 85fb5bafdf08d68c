package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// TracingGateway wraps a domain.PaymentGateway with client spans.
type TracingGateway struct {
	next   domain.PaymentGateway
	tracer trace.Tracer
}

var _ domain.PaymentGateway = (*TracingGateway)(nil)

func NewTracingGateway(next domain.PaymentGateway) *TracingGateway {
	return &TracingGateway{next: next, tracer: otel.Tracer(tracerName)}
}

func (g *TracingGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (domain.PaymentSession, error) {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.CreateSession",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tenant.id", req.Tenant.ID),
			attribute.String("reservation.id", req.Reservation.ID),
			attribute.Int64("payment.amount", req.Reservation.Price.Amount),
			attribute.String("payment.currency", req.Reservation.Price.Currency),
		),
	)
	defer span.End()

	session, err := g.next.CreateSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session, err
	}
	span.SetAttributes(attribute.String("payment.session_id", session.ExternalID))
	return session, nil
}

func (g *TracingGateway) VerifySession(ctx context.Context, externalID string) (domain.SessionDetails, error) {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.VerifySession",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("payment.session_id", externalID)),
	)
	defer span.End()

	details, err := g.next.VerifySession(ctx, externalID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return details, err
	}
	span.SetAttributes(attribute.String("payment.status", string(details.Status)))
	return details, nil
}

func (g *TracingGateway) ExpireSession(ctx context.Context, externalID string) error {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.ExpireSession",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("payment.session_id", externalID)),
	)
	defer span.End()

	if err := g.next.ExpireSession(ctx, externalID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
