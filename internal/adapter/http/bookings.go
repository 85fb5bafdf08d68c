package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

// ReservationResponse is the API representation of a reservation.
type ReservationResponse struct {
	ID           string       `json:"id" doc:"Reservation ID"`
	ProviderID   string       `json:"provider_id" doc:"Provider ID"`
	Date         string       `json:"date" doc:"Slot date (YYYY-MM-DD)"`
	Start        string       `json:"start" doc:"Slot start time (HH:MM)"`
	CustomerID   string       `json:"customer_id" doc:"Owning customer"`
	State        string       `json:"state" enum:"pending,confirmed,cancelled,expired" doc:"Lifecycle state"`
	CancelReason string       `json:"cancel_reason,omitempty" doc:"Why the hold was released"`
	Price        domain.Money `json:"price" doc:"Consultation fee"`
	CreatedAt    string       `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt    string       `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toReservationResponse(r domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:           r.ID,
		ProviderID:   r.Slot.ProviderID,
		Date:         r.Slot.Date,
		Start:        r.Slot.Start,
		CustomerID:   r.CustomerID,
		State:        string(r.State),
		CancelReason: r.CancelReason,
		Price:        r.Price,
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SessionResponse is the client-facing part of a checkout session.
type SessionResponse struct {
	ID          string `json:"id" doc:"Processor session ID"`
	CheckoutURL string `json:"checkout_url" doc:"URL to redirect the customer to"`
}

// CheckoutResponse pairs a pending reservation with its checkout session.
type CheckoutResponse struct {
	Reservation ReservationResponse `json:"reservation"`
	Session     SessionResponse     `json:"session"`
}

func toCheckoutResponse(co app.Checkout) CheckoutResponse {
	return CheckoutResponse{
		Reservation: toReservationResponse(co.Reservation),
		Session: SessionResponse{
			ID:          co.Session.ExternalID,
			CheckoutURL: co.Session.CheckoutURL,
		},
	}
}

// TransactionResponse is a ledger entry as shown to the customer.
type TransactionResponse struct {
	ID            string       `json:"id"`
	SessionID     string       `json:"session_id"`
	ReservationID string       `json:"reservation_id"`
	PaymentIntent string       `json:"payment_intent,omitempty"`
	Amount        domain.Money `json:"amount"`
	Status        string       `json:"status" enum:"completed,failed"`
	RecordedAt    string       `json:"recorded_at"`
}

// --- Checkout ---

type CheckoutInput struct {
	CustomerID string `header:"X-Customer-ID" required:"true" doc:"Authenticated customer"`
	Body       struct {
		ProviderID string `json:"provider_id" minLength:"1" doc:"Provider to book"`
		Date       string `json:"date" pattern:"^\\d{4}-\\d{2}-\\d{2}$" doc:"Slot date (YYYY-MM-DD)"`
		Start      string `json:"start" pattern:"^\\d{2}:\\d{2}$" doc:"Slot start time (HH:MM)"`
	}
}

type CheckoutOutput struct {
	Body CheckoutResponse
}

// --- Reservation by ID ---

type ReservationInput struct {
	CustomerID string `header:"X-Customer-ID" required:"true" doc:"Authenticated customer"`
	ID         string `path:"id" doc:"Reservation ID"`
}

type ReservationOutput struct {
	Body ReservationResponse
}

type ListReservationsInput struct {
	CustomerID string `header:"X-Customer-ID" required:"true" doc:"Authenticated customer"`
}

type ListReservationsOutput struct {
	Body []ReservationResponse
}

type SessionOutput struct {
	Body SessionResponse
}

// --- Payments ---

type ConfirmPaymentInput struct {
	CustomerID string `header:"X-Customer-ID" required:"true" doc:"Authenticated customer"`
	Body       struct {
		SessionID string `json:"session_id" minLength:"1" doc:"Processor session ID from the success redirect"`
	}
}

type HistoryInput struct {
	CustomerID string `header:"X-Customer-ID" required:"true" doc:"Authenticated customer"`
}

type HistoryOutput struct {
	Body []TransactionResponse
}

type PublicKeyOutput struct {
	Body struct {
		PublishableKey string `json:"publishable_key" doc:"Key the client uses to load the processor's checkout"`
	}
}

func registerBookings(api huma.API, svc Services) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reservation",
		Method:        http.MethodPost,
		Path:          "/api/v1/reservations",
		Summary:       "Hold a slot and open a checkout session",
		Tags:          []string{"Reservations"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CheckoutInput) (*CheckoutOutput, error) {
		slot := domain.Slot{ProviderID: input.Body.ProviderID, Date: input.Body.Date, Start: input.Body.Start}
		co, err := svc.Bookings.Checkout(ctx, TenantFrom(ctx), slot, input.CustomerID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CheckoutOutput{Body: toCheckoutResponse(co)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reservations",
		Method:      http.MethodGet,
		Path:        "/api/v1/reservations",
		Summary:     "List the customer's reservations",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ListReservationsInput) (*ListReservationsOutput, error) {
		tenant := TenantFrom(ctx)
		if err := scoped(tenant); err != nil {
			return nil, toHumaError(err)
		}
		rs, err := svc.Bookings.Reservations(ctx, tenant, input.CustomerID)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]ReservationResponse, len(rs))
		for i, r := range rs {
			resp[i] = toReservationResponse(r)
		}
		return &ListReservationsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-reservation",
		Method:      http.MethodGet,
		Path:        "/api/v1/reservations/{id}",
		Summary:     "Get one of the customer's reservations",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ReservationInput) (*ReservationOutput, error) {
		r, err := svc.Bookings.GetReservation(ctx, TenantFrom(ctx), input.CustomerID, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ReservationOutput{Body: toReservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-reservation",
		Method:      http.MethodPost,
		Path:        "/api/v1/reservations/{id}/cancel",
		Summary:     "Release a pending hold",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ReservationInput) (*ReservationOutput, error) {
		r, err := svc.Bookings.Cancel(ctx, TenantFrom(ctx), input.CustomerID, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ReservationOutput{Body: toReservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/reservations/{id}/session",
		Summary:     "Get the checkout session a pending hold can be paid on",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ReservationInput) (*SessionOutput, error) {
		s, err := svc.Bookings.ActiveSession(ctx, TenantFrom(ctx), input.CustomerID, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &SessionOutput{Body: SessionResponse{ID: s.ExternalID, CheckoutURL: s.CheckoutURL}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retry-checkout",
		Method:      http.MethodPost,
		Path:        "/api/v1/reservations/{id}/checkout",
		Summary:     "Open a new checkout session for a pending hold",
		Tags:        []string{"Reservations"},
	}, func(ctx context.Context, input *ReservationInput) (*CheckoutOutput, error) {
		co, err := svc.Bookings.RetryCheckout(ctx, TenantFrom(ctx), input.CustomerID, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CheckoutOutput{Body: toCheckoutResponse(co)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-payment",
		Method:      http.MethodPost,
		Path:        "/api/v1/payments/confirm",
		Summary:     "Confirm a paid session without waiting for the webhook",
		Tags:        []string{"Payments"},
	}, func(ctx context.Context, input *ConfirmPaymentInput) (*ReservationOutput, error) {
		r, err := svc.Bookings.ConfirmPayment(ctx, TenantFrom(ctx), input.CustomerID, input.Body.SessionID)
		if err != nil {
			var invalid *domain.InvalidTransitionError
			if errors.As(err, &invalid) {
				return nil, huma.Error409Conflict("payment received but the slot was already released; the clinic will contact you")
			}
			return nil, toHumaError(err)
		}
		return &ReservationOutput{Body: toReservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/payments/history",
		Summary:     "List the customer's payment transactions",
		Tags:        []string{"Payments"},
	}, func(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
		tenant := TenantFrom(ctx)
		if err := scoped(tenant); err != nil {
			return nil, toHumaError(err)
		}
		txs, err := svc.Bookings.History(ctx, tenant, input.CustomerID)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]TransactionResponse, len(txs))
		for i, tx := range txs {
			resp[i] = TransactionResponse{
				ID:            tx.ID,
				SessionID:     tx.ExternalSessionID,
				ReservationID: tx.ReservationID,
				PaymentIntent: tx.PaymentIntent,
				Amount:        tx.Amount,
				Status:        string(tx.Status),
				RecordedAt:    tx.RecordedAt.UTC().Format(time.RFC3339),
			}
		}
		return &HistoryOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-public-key",
		Method:      http.MethodGet,
		Path:        "/api/v1/payments/public-key",
		Summary:     "Get the processor's publishable key",
		Tags:        []string{"Payments"},
	}, func(_ context.Context, _ *struct{}) (*PublicKeyOutput, error) {
		out := &PublicKeyOutput{}
		out.Body.PublishableKey = svc.PublishableKey
		return out, nil
	})
}

// scoped rejects read paths on hosts that serve no clinic. Suspended
// clinics stay readable.
func scoped(t domain.Tenant) error {
	if t.Public || t.ID == "" {
		return domain.ErrNoTenantScope
	}
	return nil
}
