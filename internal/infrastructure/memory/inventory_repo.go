package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/google/uuid"
)

// InventoryRepository serializes every write behind one mutex, which is
// enough to make Modify an atomic read-modify-write per record.
type InventoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.BloodUnit
	clock func() time.Time
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{byID: make(map[string]*domain.BloodUnit), clock: time.Now}
}

func (r *InventoryRepository) Create(_ context.Context, u *domain.BloodUnit) (*domain.BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.BatchNumber == u.BatchNumber {
			return nil, domain.ErrDuplicateBatch
		}
	}

	stored := cloneUnit(u)
	stored.ID = uuid.NewString()
	now := r.clock()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.byID[stored.ID] = stored
	return cloneUnit(stored), nil
}

func (r *InventoryRepository) FindByID(_ context.Context, id string) (*domain.BloodUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	return cloneUnit(u), nil
}

func (r *InventoryRepository) List(_ context.Context) ([]*domain.BloodUnit, error) {
	return r.filter(func(*domain.BloodUnit) bool { return true }), nil
}

func (r *InventoryRepository) FindByBloodType(_ context.Context, bt domain.BloodType) ([]*domain.BloodUnit, error) {
	return r.filter(func(u *domain.BloodUnit) bool { return u.BloodType == bt }), nil
}

func (r *InventoryRepository) FindAvailable(_ context.Context, now time.Time, bt *domain.BloodType) ([]*domain.BloodUnit, error) {
	return r.filter(func(u *domain.BloodUnit) bool {
		return u.UsableAt(now) && (bt == nil || u.BloodType == *bt)
	}), nil
}

func (r *InventoryRepository) FindExpired(_ context.Context, now time.Time) ([]*domain.BloodUnit, error) {
	return r.filter(func(u *domain.BloodUnit) bool { return u.ExpiredAt(now) }), nil
}

func (r *InventoryRepository) TotalAvailable(_ context.Context, now time.Time, bt domain.BloodType) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, u := range r.byID {
		if u.BloodType == bt && u.UsableAt(now) {
			total += u.Quantity
		}
	}
	return total, nil
}

func (r *InventoryRepository) Modify(_ context.Context, id string, fn func(u *domain.BloodUnit) error) (*domain.BloodUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}

	working := cloneUnit(current)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = r.clock()
	r.byID[id] = working
	return cloneUnit(working), nil
}

func (r *InventoryRepository) filter(keep func(*domain.BloodUnit) bool) []*domain.BloodUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.BloodUnit
	for _, u := range r.byID {
		if keep(u) {
			out = append(out, cloneUnit(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiryDate.Before(out[j].ExpiryDate)
	})
	return out
}

func cloneUnit(u *domain.BloodUnit) *domain.BloodUnit {
	c := *u
	if u.CollectionDate != nil {
		t := *u.CollectionDate
		c.CollectionDate = &t
	}
	if u.DonorID != nil {
		d := *u.DonorID
		c.DonorID = &d
	}
	return &c
}
