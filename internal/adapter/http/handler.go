package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

// Services are the application services exposed over the API.
type Services struct {
	Tenants        *app.TenantService
	Bookings       *app.BookingService
	Review         *app.ReviewService
	Fees           domain.FeeSchedule
	PublishableKey string
}

// Register adds every API route to the Huma API.
func Register(api huma.API, svc Services) {
	registerTenants(api, svc)
	registerBookings(api, svc)
	registerReview(api, svc)
}

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID         string `json:"id" doc:"Unique identifier"`
	Name       string `json:"name" doc:"Display name"`
	RoutingKey string `json:"routing_key" doc:"Primary hostname"`
	Status     string `json:"status" doc:"Lifecycle state"`
	CreatedAt  string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt  string `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:         t.ID,
		Name:       t.Name,
		RoutingKey: t.RoutingKey,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// --- Create Tenant ---

type CreateTenantInput struct {
	Body struct {
		Name       string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		RoutingKey string `json:"routing_key" minLength:"1" maxLength:"253" doc:"Primary hostname, e.g. clinic.example.com"`
	}
}

type CreateTenantOutput struct {
	Body TenantResponse
}

// --- Get Tenant ---

type GetTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

// --- List Tenants ---

type ListTenantsInput struct {
	Status string `query:"status" required:"false" enum:"active,suspended" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" minimum:"1" maximum:"500" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Transition ---

type TransitionInput struct {
	ID   string `path:"id" doc:"Tenant ID"`
	Body struct {
		Event string `json:"event" doc:"Lifecycle event to trigger" enum:"suspend,reactivate"`
	}
}

type TransitionOutput struct {
	Body TenantResponse
}

// --- Routing keys ---

type AddRoutingKeyInput struct {
	ID   string `path:"id" doc:"Tenant ID"`
	Body struct {
		RoutingKey string `json:"routing_key" minLength:"1" maxLength:"253" doc:"Additional hostname"`
	}
}

// --- Fees ---

type SetFeeInput struct {
	ID         string `path:"id" doc:"Tenant ID"`
	ProviderID string `path:"provider_id" doc:"Provider ID"`
	Body       struct {
		Amount   int64  `json:"amount" minimum:"1" doc:"Fee in minor currency units"`
		Currency string `json:"currency" minLength:"3" maxLength:"3" doc:"ISO 4217 currency code"`
	}
}

type FeeOutput struct {
	Body domain.Money
}

// operator refuses platform administration on clinic hosts.
func operator(ctx context.Context) error {
	if !TenantFrom(ctx).Public {
		return domain.ErrPlatformOnly
	}
	return nil
}

func registerTenants(api huma.API, svc Services) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants",
		Summary:       "Provision a clinic tenant",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		tenant, err := svc.Tenants.Create(ctx, input.Body.Name, input.Body.RoutingKey)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		tenant, err := svc.Tenants.GetByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List clinic tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		tenants, err := svc.Tenants.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/events",
		Summary:     "Suspend or reactivate a tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		tenant, err := svc.Tenants.Transition(ctx, input.ID, domain.Event(input.Body.Event))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TransitionOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-routing-key",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{id}/routing-keys",
		Summary:       "Map an additional hostname to a tenant",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *AddRoutingKeyInput) (*struct{}, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		if err := svc.Tenants.AddRoutingKey(ctx, input.ID, input.Body.RoutingKey); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-provider-fee",
		Method:      http.MethodPut,
		Path:        "/api/v1/tenants/{id}/fees/{provider_id}",
		Summary:     "Set a provider's consultation fee",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *SetFeeInput) (*FeeOutput, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		tenant, err := svc.Tenants.GetByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		if tenant.Public {
			return nil, toHumaError(domain.ErrNoTenantScope)
		}
		fee := domain.Money{Amount: input.Body.Amount, Currency: input.Body.Currency}
		if err := svc.Fees.SetFee(ctx, tenant, input.ProviderID, fee); err != nil {
			return nil, toHumaError(err)
		}
		return &FeeOutput{Body: fee}, nil
	})
}
