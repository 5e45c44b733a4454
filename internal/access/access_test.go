package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/domain"
)

var (
	admin = &domain.Principal{ID: "admin-1", Username: "root", Role: domain.RoleAdmin, Active: true}
	nurse = &domain.Principal{ID: "nurse-1", Username: "nina", Role: domain.RoleNurse, Active: true}
	donor = &domain.Principal{ID: "donor-1", Username: "dan", Role: domain.RoleDonor, Active: true}
)

func TestWithPrincipal_NeverOverwrites(t *testing.T) {
	ctx := access.WithPrincipal(context.Background(), nurse)
	ctx = access.WithPrincipal(ctx, admin)

	got := access.FromContext(ctx)
	if got == nil || got.ID != nurse.ID {
		t.Fatalf("bound principal = %+v, want nurse", got)
	}
}

func TestFromContext_Anonymous(t *testing.T) {
	if p := access.FromContext(context.Background()); p != nil {
		t.Fatalf("want nil principal, got %+v", p)
	}
}

func TestPolicyCheck(t *testing.T) {
	tests := []struct {
		name    string
		policy  access.Policy
		p       *domain.Principal
		target  string
		wantErr error
	}{
		{"anonymous authenticated", access.Authenticated(), nil, "", domain.ErrAuthenticationRequired},
		{"anonymous roles", access.Roles(domain.RoleAdmin), nil, "", domain.ErrAuthenticationRequired},
		{"anonymous self", access.SelfOrAdmin(), nil, "donor-1", domain.ErrAuthenticationRequired},
		{"any authenticated", access.Authenticated(), donor, "", nil},
		{"role allowed", access.Roles(domain.RoleAdmin, domain.RoleNurse), nurse, "", nil},
		{"role denied", access.Roles(domain.RoleAdmin), donor, "", domain.ErrUnauthorized},
		{"self allowed", access.SelfOrAdmin(), donor, "donor-1", nil},
		{"other denied", access.SelfOrAdmin(), donor, "nurse-1", domain.ErrUnauthorized},
		{"empty target denied", access.SelfOrAdmin(), donor, "", domain.ErrUnauthorized},
		{"admin on other", access.SelfOrAdmin(), admin, "donor-1", nil},
		{"zero policy denies", access.Policy{}, admin, "", domain.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Check(tt.p, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
