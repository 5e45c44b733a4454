package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Role        domain.Role
	BloodType   *domain.BloodType
}

// AuthResult is what a successful login or registration hands back to the caller.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Username  string
	Role      domain.Role
}

type AuthUsecase struct {
	users     repository.UserRepository
	tokens    *token.Service
	cost      int
	dummyHash []byte
}

func NewAuthUsecase(users repository.UserRepository, tokens *token.Service, bcryptCost int) *AuthUsecase {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	// Compared against on unknown usernames so both failure paths cost one bcrypt round.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	return &AuthUsecase{
		users:     users,
		tokens:    tokens,
		cost:      bcryptCost,
		dummyHash: dummy,
	}
}

// Register creates an active principal and returns a token bound to it.
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	if !in.Role.Valid() {
		return AuthResult{}, domain.ErrInvalidRole
	}
	if in.BloodType != nil && !in.BloodType.Valid() {
		return AuthResult{}, domain.ErrInvalidBloodType
	}

	taken, err := u.users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return AuthResult{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return AuthResult{}, domain.ErrDuplicateIdentity
	}
	taken, err = u.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return AuthResult{}, domain.ErrDuplicateIdentity
	}

	hash, err := hashPassword(in.Password, u.cost)
	if err != nil {
		return AuthResult{}, err
	}

	p, err := u.users.Create(ctx, &domain.Principal{
		Username:     in.Username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  in.PhoneNumber,
		Role:         in.Role,
		BloodType:    in.BloodType,
		Active:       true,
	})
	if err != nil {
		// the unique constraint catches a registration racing ours
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return u.issue(p)
}

// Login checks the password and returns a fresh token. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (u *AuthUsecase) Login(ctx context.Context, username, password string) (AuthResult, error) {
	p, err := u.users.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(u.dummyHash, []byte(password))
		return AuthResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, domain.ErrInvalidCredentials
	}
	if !p.Active {
		return AuthResult{}, domain.ErrPrincipalInactive
	}

	return u.issue(p)
}

// Verify checks signature and expiry only.
func (u *AuthUsecase) Verify(_ context.Context, raw string) (*token.Claims, error) {
	return u.tokens.Verify(raw)
}

// Validate is Verify plus a live check that the subject still exists and is active.
func (u *AuthUsecase) Validate(ctx context.Context, raw string) bool {
	claims, err := u.tokens.Verify(raw)
	if err != nil {
		return false
	}
	p, err := u.users.FindByUsername(ctx, claims.Username())
	if err != nil {
		return false
	}
	return p.Active
}

func (u *AuthUsecase) issue(p *domain.Principal) (AuthResult, error) {
	issued, err := u.tokens.Issue(p)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Username:  p.Username,
		Role:      p.Role,
	}, nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
