package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// ReviewItemResponse is a quarantined event or anomaly awaiting an operator.
type ReviewItemResponse struct {
	ID            string `json:"id"`
	Kind          string `json:"kind" enum:"unresolved_tenant,missing_metadata,unknown_reservation,paid_released_slot,retry_exhausted,duplicate_payment"`
	TenantID      string `json:"tenant_id,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	Detail        string `json:"detail"`
	Payload       string `json:"payload,omitempty" doc:"Raw processor event"`
	CreatedAt     string `json:"created_at"`
	ResolvedAt    string `json:"resolved_at,omitempty"`
}

func toReviewItemResponse(item domain.ReviewItem) ReviewItemResponse {
	resp := ReviewItemResponse{
		ID:            item.ID,
		Kind:          string(item.Kind),
		TenantID:      item.TenantID,
		ReservationID: item.ReservationID,
		SessionID:     item.ExternalSessionID,
		EventID:       item.EventID,
		Detail:        item.Detail,
		Payload:       string(item.Payload),
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.ResolvedAt != nil {
		resp.ResolvedAt = item.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type ListReviewItemsInput struct {
	Kind            string `query:"kind" required:"false" enum:"unresolved_tenant,missing_metadata,unknown_reservation,paid_released_slot,retry_exhausted,duplicate_payment" doc:"Filter by kind"`
	IncludeResolved bool   `query:"include_resolved" required:"false" doc:"Also list resolved items"`
	Limit           int    `query:"limit" required:"false" default:"100" minimum:"1" maximum:"1000" doc:"Max results"`
}

type ListReviewItemsOutput struct {
	Body []ReviewItemResponse
}

type ResolveReviewItemInput struct {
	ID string `path:"id" doc:"Review item ID"`
}

func registerReview(api huma.API, svc Services) {
	huma.Register(api, huma.Operation{
		OperationID: "list-review-items",
		Method:      http.MethodGet,
		Path:        "/api/v1/review-items",
		Summary:     "List items awaiting operator review",
		Tags:        []string{"Review"},
	}, func(ctx context.Context, input *ListReviewItemsInput) (*ListReviewItemsOutput, error) {
		filter := domain.ReviewFilter{
			IncludeResolved: input.IncludeResolved,
			Limit:           input.Limit,
		}
		// Clinic hosts only see items filed against their own partition.
		if tenant := TenantFrom(ctx); !tenant.Public {
			if err := scoped(tenant); err != nil {
				return nil, toHumaError(err)
			}
			filter.TenantID = tenant.ID
		}
		if input.Kind != "" {
			k := domain.ReviewKind(input.Kind)
			filter.Kind = &k
		}

		items, err := svc.Review.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]ReviewItemResponse, len(items))
		for i, item := range items {
			resp[i] = toReviewItemResponse(item)
		}
		return &ListReviewItemsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resolve-review-item",
		Method:        http.MethodPost,
		Path:          "/api/v1/review-items/{id}/resolve",
		Summary:       "Mark a review item as handled",
		Tags:          []string{"Review"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ResolveReviewItemInput) (*struct{}, error) {
		if err := operator(ctx); err != nil {
			return nil, toHumaError(err)
		}
		if err := svc.Review.Resolve(ctx, input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})
}
