package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
)

// InventoryRepository is the blood unit store.
type InventoryRepository interface {
	Create(ctx context.Context, u *domain.BloodUnit) (*domain.BloodUnit, error)
	FindByID(ctx context.Context, id string) (*domain.BloodUnit, error)
	List(ctx context.Context) ([]*domain.BloodUnit, error)
	FindByBloodType(ctx context.Context, bt domain.BloodType) ([]*domain.BloodUnit, error)
	// FindAvailable returns AVAILABLE units with expiry after now. bt == nil means all types.
	FindAvailable(ctx context.Context, now time.Time, bt *domain.BloodType) ([]*domain.BloodUnit, error)
	// FindExpired returns every unit with expiry at or before now, whatever its status.
	FindExpired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error)
	TotalAvailable(ctx context.Context, now time.Time, bt domain.BloodType) (int, error)

	// Modify is an atomic read-modify-write of one unit. fn runs while the
	// record is locked; returning an error aborts without writing anything.
	// Concurrent Modify calls on the same id are serialized.
	Modify(ctx context.Context, id string, fn func(u *domain.BloodUnit) error) (*domain.BloodUnit, error)
}
