package otel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/bookiq/internal/adapter/otel"
	"github.com/neomorfeo/bookiq/internal/domain"
)

// --- Test provider setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

// counterValue sums every data point of the named counter whose attribute
// key has the given value.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q has data %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

var testTenant = domain.NewTenant("clinic-a", "Clinic A", "clinic-a.example.com")

func testReservation() domain.Reservation {
	slot := domain.Slot{ProviderID: "7", Date: "2025-01-10", Start: "10:00"}
	price := domain.Money{Amount: 4500, Currency: "usd"}
	return domain.NewReservation("r-1", testTenant, slot, "cust-1", price, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
}

// --- Mock repository ---

type mockReservations struct {
	stored  map[string]domain.Reservation
	expired []domain.Reservation
	err     error
}

func newMockReservations() *mockReservations {
	return &mockReservations{stored: make(map[string]domain.Reservation)}
}

func (m *mockReservations) CreateHold(_ context.Context, _ domain.Tenant, r domain.Reservation, _ time.Time) ([]domain.Reservation, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, existing := range m.stored {
		if existing.Slot == r.Slot && existing.State.Live() {
			return nil, &domain.SlotConflictError{Slot: r.Slot}
		}
	}
	m.stored[r.ID] = r
	return m.expired, nil
}

func (m *mockReservations) Get(_ context.Context, _ domain.Tenant, id string) (domain.Reservation, error) {
	r, ok := m.stored[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func (m *mockReservations) UpdateState(_ context.Context, _ domain.Tenant, id string, from, to domain.ReservationState, reason string, at time.Time) (domain.Reservation, error) {
	r, ok := m.stored[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	if r.State != from {
		return r, domain.ErrConcurrentUpdate
	}
	r.State, r.CancelReason, r.UpdatedAt = to, reason, at
	m.stored[id] = r
	return r, nil
}

// --- Tests ---

func TestTracingReservationRepository_CreateHold_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	inner := newMockReservations()
	inner.expired = []domain.Reservation{{ID: "stale"}}
	repo := adapter.NewTracingReservationRepository(inner)

	if _, err := repo.CreateHold(context.Background(), testTenant, testReservation(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "ReservationRepository.CreateHold" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "ReservationRepository.CreateHold")
	}
	assertAttribute(t, spans[0], "tenant.id", "clinic-a")
	assertAttribute(t, spans[0], "reservation.id", "r-1")
	assertAttribute(t, spans[0], "slot.date", "2025-01-10")
	assertAttribute(t, spans[0], "holds.expired", "1")

	if got := counterValue(t, reader, "bookiq.reservation.holds", "result", "ok"); got != 1 {
		t.Errorf("ok holds = %d, want 1", got)
	}
}

func TestTracingReservationRepository_CreateHold_ConflictIsNotAnError(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	inner := newMockReservations()
	repo := adapter.NewTracingReservationRepository(inner)

	first := testReservation()
	if _, err := repo.CreateHold(context.Background(), testTenant, first, time.Now()); err != nil {
		t.Fatalf("first hold: %v", err)
	}
	second := testReservation()
	second.ID = "r-2"
	_, err := repo.CreateHold(context.Background(), testTenant, second, time.Now())

	var conflict *domain.SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("slot conflict should not mark the span as failed")
	}
	assertAttribute(t, spans[1], "slot.conflict", "true")

	if got := counterValue(t, reader, "bookiq.reservation.holds", "result", "conflict"); got != 1 {
		t.Errorf("conflict holds = %d, want 1", got)
	}
}

func TestTracingReservationRepository_CreateHold_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	setupTestMeter(t)
	inner := newMockReservations()
	inner.err = errors.New("disk I/O error")
	repo := adapter.NewTracingReservationRepository(inner)

	if _, err := repo.CreateHold(context.Background(), testTenant, testReservation(), time.Now()); err == nil {
		t.Fatal("expected error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestTracingReservationRepository_Get_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingReservationRepository(newMockReservations())

	_, err := repo.Get(context.Background(), testTenant, "nonexistent")
	if !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "ReservationRepository.Get" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "ReservationRepository.Get")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
}

func TestTracingReservationRepository_UpdateState_RecordsTransition(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockReservations()
	r := testReservation()
	inner.stored[r.ID] = r
	repo := adapter.NewTracingReservationRepository(inner)

	got, err := repo.UpdateState(context.Background(), testTenant, r.ID, domain.ReservationPending, domain.ReservationConfirmed, "", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != domain.ReservationConfirmed {
		t.Errorf("State = %q, want %q", got.State, domain.ReservationConfirmed)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	assertAttribute(t, spans[0], "state.from", "pending")
	assertAttribute(t, spans[0], "state.to", "confirmed")
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
