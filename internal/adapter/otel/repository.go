package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/bookiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/bookiq/internal/adapter/otel"

// TracingReservationRepository wraps a domain.ReservationRepository with
// OpenTelemetry tracing. Each method creates a span with the tenant and
// reservation ids; hold attempts are also counted by result.
type TracingReservationRepository struct {
	next   domain.ReservationRepository
	tracer trace.Tracer
	holds  metric.Int64Counter
}

// Compile-time check: TracingReservationRepository implements domain.ReservationRepository.
var _ domain.ReservationRepository = (*TracingReservationRepository)(nil)

// NewTracingReservationRepository creates a tracing decorator around the given repository.
func NewTracingReservationRepository(next domain.ReservationRepository) *TracingReservationRepository {
	holds, _ := otel.Meter(tracerName).Int64Counter("bookiq.reservation.holds",
		metric.WithDescription("Hold attempts by result"),
	)
	return &TracingReservationRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
		holds:  holds,
	}
}

func (r *TracingReservationRepository) CreateHold(ctx context.Context, tenant domain.Tenant, res domain.Reservation, abandonedBefore time.Time) ([]domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.CreateHold",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("reservation.id", res.ID),
			attribute.String("slot.provider_id", res.Slot.ProviderID),
			attribute.String("slot.date", res.Slot.Date),
			attribute.String("slot.start", res.Slot.Start),
		),
	)
	defer span.End()

	expired, err := r.next.CreateHold(ctx, tenant, res, abandonedBefore)

	result := "ok"
	var conflict *domain.SlotConflictError
	switch {
	case errors.As(err, &conflict):
		// A taken slot is an expected outcome, not a span error.
		result = "conflict"
		span.SetAttributes(attribute.Bool("slot.conflict", true))
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetAttributes(attribute.Int("holds.expired", len(expired)))
	}

	if r.holds != nil {
		r.holds.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("result", result),
		))
	}
	return expired, err
}

func (r *TracingReservationRepository) Get(ctx context.Context, tenant domain.Tenant, id string) (domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.Get",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("reservation.id", id),
		),
	)
	defer span.End()

	res, err := r.next.Get(ctx, tenant, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (r *TracingReservationRepository) UpdateState(ctx context.Context, tenant domain.Tenant, id string, from, to domain.ReservationState, reason string, at time.Time) (domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.UpdateState",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("reservation.id", id),
			attribute.String("state.from", string(from)),
			attribute.String("state.to", string(to)),
		),
	)
	defer span.End()

	res, err := r.next.UpdateState(ctx, tenant, id, from, to, reason, at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}
