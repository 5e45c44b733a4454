// Package memory holds in-process store implementations used by tests and by
// the server when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"github.com/google/uuid"
)

type UserRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Principal
	clock func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byID: make(map[string]*domain.Principal), clock: time.Now}
}

func (r *UserRepository) Create(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflicts("", p.Username, p.Email) {
		return nil, domain.ErrDuplicateIdentity
	}

	stored := clonePrincipal(p)
	stored.ID = uuid.NewString()
	now := r.clock()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.byID[stored.ID] = stored
	return clonePrincipal(stored), nil
}

func (r *UserRepository) Save(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[p.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if r.conflicts(p.ID, p.Username, p.Email) {
		return nil, domain.ErrDuplicateIdentity
	}

	stored := clonePrincipal(p)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = r.clock()
	r.byID[p.ID] = stored
	return clonePrincipal(stored), nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clonePrincipal(p), nil
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if p.Username == username {
			return clonePrincipal(p), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if strings.EqualFold(p.Email, email) {
			return clonePrincipal(p), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return err == nil, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	return err == nil, nil
}

func (r *UserRepository) List(_ context.Context, filter repository.UserFilter) ([]*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := strings.ToLower(filter.Name)
	var out []*domain.Principal
	for _, p := range r.byID {
		if name != "" &&
			!strings.Contains(strings.ToLower(p.FirstName), name) &&
			!strings.Contains(strings.ToLower(p.LastName), name) &&
			!strings.Contains(strings.ToLower(p.Username), name) {
			continue
		}
		if filter.BloodType != nil && (p.BloodType == nil || *p.BloodType != *filter.BloodType) {
			continue
		}
		if filter.Role != nil && p.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && p.Active != *filter.Active {
			continue
		}
		out = append(out, clonePrincipal(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *UserRepository) SetActive(_ context.Context, id string, active bool) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	p.Active = active
	p.UpdatedAt = r.clock()
	return clonePrincipal(p), nil
}

// conflicts must be called with mu held.
func (r *UserRepository) conflicts(selfID, username, email string) bool {
	for id, p := range r.byID {
		if id == selfID {
			continue
		}
		if p.Username == username || strings.EqualFold(p.Email, email) {
			return true
		}
	}
	return false
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	c := *p
	if p.BloodType != nil {
		bt := *p.BloodType
		c.BloodType = &bt
	}
	return &c
}
