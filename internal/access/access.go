// Package access carries the authenticated principal through a request and
// evaluates the role predicate attached to each protected operation.
package access

import (
	"context"
	"strings"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
)

type ctxKey struct{}

// WithPrincipal binds p to ctx. A principal that is already bound wins; the
// second call returns ctx unchanged.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	if FromContext(ctx) != nil || p == nil {
		return ctx
	}
	bound := *p
	return context.WithValue(ctx, ctxKey{}, &bound)
}

// FromContext returns the bound principal, or nil for an anonymous request.
// Callers must treat the result as read-only.
func FromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(ctxKey{}).(*domain.Principal)
	return p
}

type Kind int

const (
	KindAuthenticated Kind = iota + 1
	KindRoles
	KindSelfOrAdmin
)

// Policy is the access rule for one operation.
type Policy struct {
	Kind  Kind
	Roles []domain.Role
}

// Authenticated admits any active principal.
func Authenticated() Policy {
	return Policy{Kind: KindAuthenticated}
}

// Roles admits principals holding one of roles.
func Roles(roles ...domain.Role) Policy {
	return Policy{Kind: KindRoles, Roles: roles}
}

// SelfOrAdmin admits the principal whose ID is the target resource, and admins.
func SelfOrAdmin() Policy {
	return Policy{Kind: KindSelfOrAdmin}
}

// Check returns nil when p may perform the operation on targetID.
// targetID is only consulted by SelfOrAdmin.
func (pol Policy) Check(p *domain.Principal, targetID string) error {
	if p == nil {
		return domain.ErrAuthenticationRequired
	}

	switch pol.Kind {
	case KindAuthenticated:
		return nil
	case KindRoles:
		for _, r := range pol.Roles {
			if p.Role == r {
				return nil
			}
		}
		return domain.ErrUnauthorized
	case KindSelfOrAdmin:
		if p.IsAdmin() || (targetID != "" && p.ID == targetID) {
			return nil
		}
		return domain.ErrUnauthorized
	default:
		// zero Policy never grants anything
		return domain.ErrUnauthorized
	}
}

func (pol Policy) String() string {
	switch pol.Kind {
	case KindAuthenticated:
		return "authenticated"
	case KindRoles:
		names := make([]string, len(pol.Roles))
		for i, r := range pol.Roles {
			names[i] = string(r)
		}
		return "roles(" + strings.Join(names, ",") + ")"
	case KindSelfOrAdmin:
		return "self_or_admin"
	default:
		return "deny"
	}
}
