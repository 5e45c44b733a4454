package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// UpdateUserInput is a partial update: nil fields are left as they are.
type UpdateUserInput struct {
	Email       *string
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	BloodType   *domain.BloodType
	Role        *domain.Role
	Active      *bool
}

type UserStats struct {
	Total        int                      `json:"total"`
	Active       int                      `json:"active"`
	Inactive     int                      `json:"inactive"`
	ByRole       map[domain.Role]int      `json:"by_role"`
	ByBloodType  map[domain.BloodType]int `json:"by_blood_type"`
	ActiveDonors int                      `json:"active_donors"`
}

// BulkResult reports a bulk operation in which each id is attempted on its own.
type BulkResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed"`
}

type UserUsecase struct {
	users  repository.UserRepository
	cost   int
	logger *slog.Logger
}

func NewUserUsecase(users repository.UserRepository, bcryptCost int, logger *slog.Logger) *UserUsecase {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserUsecase{
		users:  users,
		cost:   bcryptCost,
		logger: logger.With("component", "users"),
	}
}

func (u *UserUsecase) Get(ctx context.Context, id string) (*domain.Principal, error) {
	return u.users.FindByID(ctx, id)
}

func (u *UserUsecase) List(ctx context.Context, filter repository.UserFilter) ([]*domain.Principal, error) {
	return u.users.List(ctx, filter)
}

// ActiveDonors lists active DONOR principals, optionally narrowed to one blood type.
func (u *UserUsecase) ActiveDonors(ctx context.Context, bt *domain.BloodType) ([]*domain.Principal, error) {
	role := domain.RoleDonor
	active := true
	return u.users.List(ctx, repository.UserFilter{Role: &role, Active: &active, BloodType: bt})
}

func (u *UserUsecase) Stats(ctx context.Context) (UserStats, error) {
	all, err := u.users.List(ctx, repository.UserFilter{})
	if err != nil {
		return UserStats{}, fmt.Errorf("list users: %w", err)
	}

	s := UserStats{
		ByRole:      make(map[domain.Role]int, len(domain.Roles)),
		ByBloodType: make(map[domain.BloodType]int, len(domain.BloodTypes)),
	}
	for _, p := range all {
		s.Total++
		if p.Active {
			s.Active++
		} else {
			s.Inactive++
		}
		s.ByRole[p.Role]++
		if p.BloodType != nil {
			s.ByBloodType[*p.BloodType]++
		}
		if p.Active && p.Role == domain.RoleDonor {
			s.ActiveDonors++
		}
	}
	return s, nil
}

// Update applies in to the principal id on behalf of caller. Only admins may
// change role or active flag.
func (u *UserUsecase) Update(ctx context.Context, caller *domain.Principal, id string, in UpdateUserInput) (*domain.Principal, error) {
	if (in.Role != nil || in.Active != nil) && !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if in.BloodType != nil && !in.BloodType.Valid() {
		return nil, domain.ErrInvalidBloodType
	}

	p, err := u.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if !strings.EqualFold(email, p.Email) {
			taken, err := u.users.ExistsByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("check email: %w", err)
			}
			if taken {
				return nil, domain.ErrDuplicateIdentity
			}
		}
		p.Email = email
	}
	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	if in.PhoneNumber != nil {
		p.PhoneNumber = *in.PhoneNumber
	}
	if in.BloodType != nil {
		bt := *in.BloodType
		p.BloodType = &bt
	}
	if in.Role != nil {
		p.Role = *in.Role
	}
	if in.Active != nil {
		p.Active = *in.Active
	}

	return u.users.Save(ctx, p)
}

func (u *UserUsecase) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	p, err := u.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err = bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(oldPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}

	hash, err := hashPassword(newPassword, u.cost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	if _, err = u.users.Save(ctx, p); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// SetActive activates or deactivates a principal. Deactivation is the only
// form of deletion.
func (u *UserUsecase) SetActive(ctx context.Context, id string, active bool) (*domain.Principal, error) {
	return u.users.SetActive(ctx, id, active)
}

// BulkSetActive attempts every id independently; one failure does not stop the rest.
func (u *UserUsecase) BulkSetActive(ctx context.Context, ids []string, active bool) BulkResult {
	res := BulkResult{Failed: []string{}}
	for _, id := range ids {
		if _, err := u.users.SetActive(ctx, id, active); err != nil {
			u.logger.WarnContext(ctx, "bulk set active failed", "user_id", id, "active", active, "error", err)
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded++
	}
	return res
}

func (u *UserUsecase) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := u.users.ExistsByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return !taken, nil
}

func (u *UserUsecase) EmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := u.users.ExistsByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return !taken, nil
}
