package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

func TestNewTenant(t *testing.T) {
	before := time.Now().UTC()
	tenant := domain.NewTenant("id-1", "Clinica Bienestar", "bienestar.example.com")
	after := time.Now().UTC()

	if tenant.ID != "id-1" {
		t.Errorf("ID = %q, want %q", tenant.ID, "id-1")
	}
	if tenant.Name != "Clinica Bienestar" {
		t.Errorf("Name = %q, want %q", tenant.Name, "Clinica Bienestar")
	}
	if tenant.RoutingKey != "bienestar.example.com" {
		t.Errorf("RoutingKey = %q, want %q", tenant.RoutingKey, "bienestar.example.com")
	}
	if tenant.Status != domain.StatusActive {
		t.Errorf("Status = %q, want %q", tenant.Status, domain.StatusActive)
	}
	if tenant.CreatedAt.Before(before) || tenant.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want between %v and %v", tenant.CreatedAt, before, after)
	}
	if tenant.UpdatedAt != tenant.CreatedAt {
		t.Errorf("UpdatedAt should equal CreatedAt on new tenant")
	}
}

func TestTenant_AcceptsBookings(t *testing.T) {
	active := domain.NewTenant("t-1", "A", "a.example.com")
	if err := active.AcceptsBookings(); err != nil {
		t.Errorf("active tenant: unexpected error %v", err)
	}

	suspended := active
	suspended.Status = domain.StatusSuspended
	if err := suspended.AcceptsBookings(); !errors.Is(err, domain.ErrTenantSuspended) {
		t.Errorf("suspended tenant: got %v, want ErrTenantSuspended", err)
	}

	public := domain.Tenant{ID: domain.DefaultPublicTenantID, Status: domain.StatusActive, Public: true}
	if err := public.AcceptsBookings(); !errors.Is(err, domain.ErrNoTenantScope) {
		t.Errorf("public tenant: got %v, want ErrNoTenantScope", err)
	}
}

func TestTransitions_ValidPaths(t *testing.T) {
	cases := []struct {
		event domain.Event
		src   domain.Status
		dst   domain.Status
	}{
		{domain.EventSuspend, domain.StatusActive, domain.StatusSuspended},
		{domain.EventReactivate, domain.StatusSuspended, domain.StatusActive},
	}

	for _, tc := range cases {
		found := false
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src && tr.Dst == tc.dst {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing transition: %q from %q → %q", tc.event, tc.src, tc.dst)
		}
	}
}

func TestTransitions_InvalidPaths(t *testing.T) {
	invalid := []struct {
		event domain.Event
		src   domain.Status
	}{
		{domain.EventSuspend, domain.StatusSuspended},
		{domain.EventReactivate, domain.StatusActive},
	}

	for _, tc := range invalid {
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src {
				t.Errorf("unexpected transition: %q from %q should not exist", tc.event, tc.src)
			}
		}
	}
}
