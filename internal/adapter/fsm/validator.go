package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time checks.
var (
	_ domain.TransitionValidator  = (*Validator)(nil)
	_ domain.ReservationValidator = (*ReservationValidator)(nil)
)

// edge is one (event, src, dst) triple in string form.
type edge struct {
	event, src, dst string
}

// buildEvents converts transitions into looplab/fsm EventDesc format.
// It consolidates transitions with the same event+destination into a single
// EventDesc with multiple source states.
func buildEvents(edges []edge) []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, e := range edges {
		k := key{event: e.event, dst: e.dst}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], e.src)
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// fire runs event against a short-lived FSM positioned at current.
// looplab/fsm is stateful, so a fresh instance is created per call.
// ok is false when the event is not allowed from current.
func fire(ctx context.Context, events []loopfsm.EventDesc, current, event string) (dst string, ok bool, err error) {
	machine := loopfsm.NewFSM(current, events, nil)

	if err := machine.Event(ctx, event); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", false, nil
		}
		return "", false, err
	}

	return machine.Current(), true, nil
}

var tenantEvents = func() []loopfsm.EventDesc {
	edges := make([]edge, 0, len(domain.Transitions))
	for _, t := range domain.Transitions {
		edges = append(edges, edge{event: string(t.Event), src: string(t.Src), dst: string(t.Dst)})
	}
	return buildEvents(edges)
}()

var reservationEvents = func() []loopfsm.EventDesc {
	edges := make([]edge, 0, len(domain.ReservationTransitions))
	for _, t := range domain.ReservationTransitions {
		edges = append(edges, edge{event: string(t.Event), src: string(t.Src), dst: string(t.Dst)})
	}
	return buildEvents(edges)
}()

// Validator implements domain.TransitionValidator for the tenant lifecycle.
type Validator struct{}

// New creates a new FSM-backed tenant transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks if the given event is valid from the current status and
// returns the destination status. Returns a domain.TransitionError if
// the transition is not allowed.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	dst, ok, err := fire(ctx, tenantEvents, string(current), string(event))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &domain.TransitionError{Event: event, Current: current}
	}
	return domain.Status(dst), nil
}

// ReservationValidator implements domain.ReservationValidator.
type ReservationValidator struct{}

// NewReservationValidator creates a new FSM-backed reservation validator.
func NewReservationValidator() *ReservationValidator {
	return &ReservationValidator{}
}

// Apply returns the state r moves to on event, or a
// *domain.InvalidTransitionError.
func (v *ReservationValidator) Apply(ctx context.Context, r domain.Reservation, event domain.ReservationEvent) (domain.ReservationState, error) {
	dst, ok, err := fire(ctx, reservationEvents, string(r.State), string(event))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &domain.InvalidTransitionError{
			ReservationID: r.ID,
			Event:         event,
			Current:       r.State,
		}
	}
	return domain.ReservationState(dst), nil
}
