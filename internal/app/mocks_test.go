package app_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// --- Mocks ---

type mockTenantRepo struct {
	tenants map[string]domain.Tenant
	keys    map[string]string
	err     error
}

func newMockTenantRepo(tenants ...domain.Tenant) *mockTenantRepo {
	m := &mockTenantRepo{
		tenants: make(map[string]domain.Tenant),
		keys:    make(map[string]string),
	}
	public := domain.NewTenant(domain.DefaultPublicTenantID, "Public", "")
	public.Public = true
	m.tenants[public.ID] = public
	for _, t := range tenants {
		_ = m.Create(context.Background(), t)
	}
	return m
}

func (m *mockTenantRepo) Create(_ context.Context, t domain.Tenant) error {
	if _, taken := m.keys[t.RoutingKey]; taken && t.RoutingKey != "" {
		return domain.ErrRoutingKeyConflict
	}
	m.tenants[t.ID] = t
	if t.RoutingKey != "" {
		m.keys[t.RoutingKey] = t.ID
	}
	return nil
}

func (m *mockTenantRepo) GetByID(_ context.Context, id string) (domain.Tenant, error) {
	if m.err != nil {
		return domain.Tenant{}, m.err
	}
	t, ok := m.tenants[id]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

func (m *mockTenantRepo) GetByRoutingKey(ctx context.Context, key string) (domain.Tenant, error) {
	if m.err != nil {
		return domain.Tenant{}, m.err
	}
	id, ok := m.keys[key]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockTenantRepo) AddRoutingKey(_ context.Context, id, key string) error {
	if _, ok := m.tenants[id]; !ok {
		return domain.ErrTenantNotFound
	}
	if _, taken := m.keys[key]; taken {
		return domain.ErrRoutingKeyConflict
	}
	m.keys[key] = id
	return nil
}

func (m *mockTenantRepo) List(_ context.Context, _ domain.ListFilter) ([]domain.Tenant, error) {
	out := make([]domain.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockTenantRepo) Update(_ context.Context, t domain.Tenant) error {
	if _, ok := m.tenants[t.ID]; !ok {
		return domain.ErrTenantNotFound
	}
	m.tenants[t.ID] = t
	return nil
}

// memReservations mirrors the storage contract: a live-slot uniqueness check
// and lazy expiry under one lock, and compare-and-set updates.
type memReservations struct {
	mu   sync.Mutex
	rows map[string]domain.Reservation
}

func newMemReservations() *memReservations {
	return &memReservations{rows: make(map[string]domain.Reservation)}
}

func resKey(tenantID, id string) string { return tenantID + "/" + id }

func (m *memReservations) CreateHold(_ context.Context, tenant domain.Tenant, r domain.Reservation, abandonedBefore time.Time) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []domain.Reservation
	for k, existing := range m.rows {
		if existing.TenantID != tenant.ID || existing.Slot != r.Slot || existing.State != domain.ReservationPending {
			continue
		}
		if !existing.CreatedAt.After(abandonedBefore) {
			existing.State = domain.ReservationExpired
			existing.CancelReason = "abandoned"
			m.rows[k] = existing
			expired = append(expired, existing)
		}
	}

	for _, existing := range m.rows {
		if existing.TenantID == tenant.ID && existing.Slot == r.Slot && existing.State.Live() {
			return nil, &domain.SlotConflictError{Slot: r.Slot}
		}
	}

	r.TenantID = tenant.ID
	m.rows[resKey(tenant.ID, r.ID)] = r
	return expired, nil
}

func (m *memReservations) ListForCustomer(_ context.Context, tenant domain.Tenant, customerID string) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Reservation
	for _, r := range m.rows {
		if r.TenantID == tenant.ID && r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memReservations) Get(_ context.Context, tenant domain.Tenant, id string) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[resKey(tenant.ID, id)]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func (m *memReservations) UpdateState(_ context.Context, tenant domain.Tenant, id string, from, to domain.ReservationState, reason string, at time.Time) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[resKey(tenant.ID, id)]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	if r.State != from {
		return r, domain.ErrConcurrentUpdate
	}
	r.State = to
	r.CancelReason = reason
	r.UpdatedAt = at
	m.rows[resKey(tenant.ID, id)] = r
	return r, nil
}

func (m *memReservations) set(r domain.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[resKey(r.TenantID, r.ID)] = r
}

func (m *memReservations) all(tenantID string) []domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.rows {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out
}

type memSessions struct {
	rows map[string]domain.PaymentSession
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]domain.PaymentSession)}
}

func (m *memSessions) Activate(_ context.Context, tenant domain.Tenant, s domain.PaymentSession) error {
	for k, existing := range m.rows {
		if existing.TenantID == tenant.ID && existing.ReservationID == s.ReservationID {
			existing.Active = false
			m.rows[k] = existing
		}
	}
	s.TenantID = tenant.ID
	s.Active = true
	m.rows[resKey(tenant.ID, s.ExternalID)] = s
	return nil
}

func (m *memSessions) Get(_ context.Context, tenant domain.Tenant, id string) (domain.PaymentSession, error) {
	s, ok := m.rows[resKey(tenant.ID, id)]
	if !ok {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) ActiveFor(_ context.Context, tenant domain.Tenant, reservationID string) (domain.PaymentSession, error) {
	for _, s := range m.rows {
		if s.TenantID == tenant.ID && s.ReservationID == reservationID && s.Active {
			return s, nil
		}
	}
	return domain.PaymentSession{}, domain.ErrSessionNotFound
}

type memLedger struct {
	mu      sync.Mutex
	rows    map[string]domain.Transaction
	failing int
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]domain.Transaction)}
}

var errLedgerDown = errors.New("ledger unavailable")

func (m *memLedger) Record(_ context.Context, tenant domain.Tenant, tx domain.Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing > 0 {
		m.failing--
		return false, errLedgerDown
	}
	existing, ok := m.rows[tx.ExternalSessionID]
	if !ok {
		tx.TenantID = tenant.ID
		m.rows[tx.ExternalSessionID] = tx
		return true, nil
	}
	if existing.TenantID == tenant.ID && existing.Status == domain.TransactionFailed && tx.Status == domain.TransactionCompleted {
		existing.Status = tx.Status
		existing.PaymentIntent = tx.PaymentIntent
		m.rows[tx.ExternalSessionID] = existing
		return true, nil
	}
	return false, nil
}

func (m *memLedger) GetBySession(_ context.Context, tenant domain.Tenant, id string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.rows[id]
	if !ok || tx.TenantID != tenant.ID {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *memLedger) ListForCustomer(_ context.Context, tenant domain.Tenant, customerID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.rows {
		if tx.TenantID == tenant.ID && tx.CustomerID == customerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memLedger) count(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tx := range m.rows {
		if tx.TenantID == tenantID {
			n++
		}
	}
	return n
}

type memReview struct {
	items map[string]domain.ReviewItem
	order []string
}

func newMemReview() *memReview {
	return &memReview{items: make(map[string]domain.ReviewItem)}
}

func (m *memReview) Flag(_ context.Context, item domain.ReviewItem) error {
	if _, ok := m.items[item.ID]; ok {
		return nil
	}
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	return nil
}

func (m *memReview) List(_ context.Context, filter domain.ReviewFilter) ([]domain.ReviewItem, error) {
	out := make([]domain.ReviewItem, 0, len(m.order))
	for _, id := range m.order {
		if filter.TenantID != "" && m.items[id].TenantID != filter.TenantID {
			continue
		}
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *memReview) Resolve(_ context.Context, id string, at time.Time) error {
	item, ok := m.items[id]
	if !ok {
		return domain.ErrReviewItemNotFound
	}
	item.ResolvedAt = &at
	m.items[id] = item
	return nil
}

func (m *memReview) kinds() []domain.ReviewKind {
	out := make([]domain.ReviewKind, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id].Kind)
	}
	return out
}

type memFees map[string]domain.Money

func (m memFees) Fee(_ context.Context, tenant domain.Tenant, providerID string) (domain.Money, error) {
	fee, ok := m[tenant.ID+"/"+providerID]
	if !ok {
		return domain.Money{}, domain.ErrFeeNotConfigured
	}
	return fee, nil
}

func (m memFees) SetFee(_ context.Context, tenant domain.Tenant, providerID string, fee domain.Money) error {
	m[tenant.ID+"/"+providerID] = fee
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	event domain.ReservationEvent
	id    string
}

func (m *mockPublisher) Publish(_ context.Context, e domain.ReservationEvent, r domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{event: e, id: r.ID})
	return m.err
}

// tableValidator applies domain.ReservationTransitions directly.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, r domain.Reservation, event domain.ReservationEvent) (domain.ReservationState, error) {
	for _, t := range domain.ReservationTransitions {
		if t.Event == event && t.Src == r.State {
			return t.Dst, nil
		}
	}
	return "", &domain.InvalidTransitionError{ReservationID: r.ID, Event: event, Current: r.State}
}

type tenantStatusValidator struct{}

func (tenantStatusValidator) Apply(_ context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	for _, t := range domain.Transitions {
		if t.Event == event && t.Src == current {
			return t.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}

// fakeTokens encodes the reference in clear text.
type fakeTokens struct{}

func (fakeTokens) Issue(ref domain.TenantReference) (string, error) {
	return "tok|" + ref.TenantID + "|" + ref.ReservationID, nil
}

func (fakeTokens) Parse(token string) (domain.TenantReference, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 || parts[0] != "tok" {
		return domain.TenantReference{}, errors.New("token signature invalid")
	}
	return domain.TenantReference{TenantID: parts[1], ReservationID: parts[2]}, nil
}

type stubGateway struct {
	mu        sync.Mutex
	createErr error
	expireErr error
	requests  []domain.SessionRequest
	verified  map[string]domain.SessionDetails
	expired   []string
}

func (g *stubGateway) CreateSession(_ context.Context, req domain.SessionRequest) (domain.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return domain.PaymentSession{}, g.createErr
	}
	g.requests = append(g.requests, req)
	return domain.PaymentSession{
		ExternalID:    fmt.Sprintf("cs_%d", len(g.requests)),
		ReservationID: req.Reservation.ID,
		TenantID:      req.Tenant.ID,
		Amount:        req.Reservation.Price,
		CheckoutURL:   fmt.Sprintf("https://pay.example.com/cs_%d", len(g.requests)),
	}, nil
}

func (g *stubGateway) VerifySession(_ context.Context, id string) (domain.SessionDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.verified[id]
	if !ok {
		return domain.SessionDetails{}, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: "verify session"}
	}
	return d, nil
}

func (g *stubGateway) ExpireSession(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireErr != nil {
		return g.expireErr
	}
	g.expired = append(g.expired, id)
	return nil
}

func (g *stubGateway) lastRequest() domain.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

// requestFor returns the request that produced session id cs_N.
func (g *stubGateway) requestFor(id string) domain.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var n int
	if _, err := fmt.Sscanf(id, "cs_%d", &n); err != nil || n < 1 || n > len(g.requests) {
		return domain.SessionRequest{}
	}
	return g.requests[n-1]
}
