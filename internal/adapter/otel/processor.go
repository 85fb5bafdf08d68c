package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Processor is the reconciliation entry point shared by the webhook handler
// and the retry worker.
type Processor interface {
	Process(ctx context.Context, event domain.PaymentEvent) (domain.Outcome, error)
	FlagExhausted(ctx context.Context, event domain.PaymentEvent, cause error) error
}

// TracingProcessor traces payment event processing and counts outcomes.
type TracingProcessor struct {
	next     Processor
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

var _ Processor = (*TracingProcessor)(nil)

func NewTracingProcessor(next Processor) *TracingProcessor {
	outcomes, _ := otel.Meter(tracerName).Int64Counter("bookiq.webhook.outcomes",
		metric.WithDescription("Payment events by type and outcome"),
	)
	return &TracingProcessor{
		next:     next,
		tracer:   otel.Tracer(tracerName),
		outcomes: outcomes,
	}
}

func (p *TracingProcessor) Process(ctx context.Context, event domain.PaymentEvent) (domain.Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "Reconciler.Process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.type", string(event.Type)),
			attribute.String("payment.session_id", event.Session.ExternalID),
		),
	)
	defer span.End()

	outcome, err := p.next.Process(ctx, event)

	label := string(outcome)
	if err != nil {
		label = "retry"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("event.outcome", label))
	}

	if p.outcomes != nil {
		p.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", string(event.Type)),
			attribute.String("outcome", label),
		))
	}
	return outcome, err
}

func (p *TracingProcessor) FlagExhausted(ctx context.Context, event domain.PaymentEvent, cause error) error {
	ctx, span := p.tracer.Start(ctx, "Reconciler.FlagExhausted",
		trace.WithAttributes(attribute.String("event.id", event.ID)),
	)
	defer span.End()

	err := p.next.FlagExhausted(ctx, event, cause)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
