package http

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	var slotErr *domain.SlotConflictError
	if errors.As(err, &slotErr) {
		return huma.Error409Conflict(slotErr.Error())
	}

	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		return huma.Error422UnprocessableEntity(invalid.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return huma.Error404NotFound("tenant not found")
	case errors.Is(err, domain.ErrNoTenantScope):
		return huma.Error404NotFound("no clinic is served at this host")
	case errors.Is(err, domain.ErrPlatformOnly):
		return huma.Error404NotFound("not found")
	case errors.Is(err, domain.ErrReservationNotFound):
		return huma.Error404NotFound("reservation not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		return huma.Error404NotFound("payment session not found")
	case errors.Is(err, domain.ErrReviewItemNotFound):
		return huma.Error404NotFound("review item not found")
	case errors.Is(err, domain.ErrTenantSuspended):
		return huma.Error403Forbidden("clinic is not accepting bookings")
	case errors.Is(err, domain.ErrRoutingKeyConflict):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, domain.ErrPaymentIncomplete):
		return huma.Error409Conflict("payment has not been completed")
	case errors.Is(err, domain.ErrInvalidSlot), errors.Is(err, domain.ErrFeeNotConfigured):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return huma.Error503ServiceUnavailable("payment processor unavailable, please retry")
	case errors.Is(err, domain.ErrProviderError):
		return huma.Error502BadGateway("payment processor rejected the request")
	}

	return huma.Error500InternalServerError("internal server error")
}
