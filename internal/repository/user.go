package repository

import (
	"context"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
)

type UserFilter struct {
	Name      string            // substring of first name, last name or username; empty = any
	BloodType *domain.BloodType // nil = any
	Role      *domain.Role      // nil = any
	Active    *bool             // nil = any
}

// UserRepository is the credential store. Implementations must enforce
// username and email uniqueness and report violations as
// domain.ErrDuplicateIdentity.
type UserRepository interface {
	Create(ctx context.Context, p *domain.Principal) (*domain.Principal, error)
	// Save overwrites every mutable column of an existing principal.
	Save(ctx context.Context, p *domain.Principal) (*domain.Principal, error)

	FindByID(ctx context.Context, id string) (*domain.Principal, error)
	FindByUsername(ctx context.Context, username string) (*domain.Principal, error)
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	List(ctx context.Context, filter UserFilter) ([]*domain.Principal, error)
	SetActive(ctx context.Context, id string, active bool) (*domain.Principal, error)
}
