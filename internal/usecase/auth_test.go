package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/infrastructure/memory"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"golang.org/x/crypto/bcrypt"
)

// ---- fakes ----

// fakeUserRepo wraps a memory store so individual calls can be failed.
type fakeUserRepo struct {
	*memory.UserRepository
	existsByUsername func(ctx context.Context, username string) (bool, error)
	findByUsername   func(ctx context.Context, username string) (*domain.Principal, error)
}

func (r *fakeUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if r.existsByUsername != nil {
		return r.existsByUsername(ctx, username)
	}
	return r.UserRepository.ExistsByUsername(ctx, username)
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	if r.findByUsername != nil {
		return r.findByUsername(ctx, username)
	}
	return r.UserRepository.FindByUsername(ctx, username)
}

// ---- helpers ----

const testJWTKey = "test-jwt-secret-at-least-32-chars!!"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newAuth(t *testing.T) (*usecase.AuthUsecase, *memory.UserRepository, *token.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	users := memory.NewUserRepository()
	tokens := token.NewService([]byte(testJWTKey), token.WithClock(clock.Now))
	return usecase.NewAuthUsecase(users, tokens, bcrypt.MinCost), users, tokens, clock
}

func register(t *testing.T, auth *usecase.AuthUsecase, username, email, password string, role domain.Role) usecase.AuthResult {
	t.Helper()
	res, err := auth.Register(context.Background(), usecase.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return res
}

// ---- Register ----

func TestRegister_IssuesTokenForNewPrincipal(t *testing.T) {
	auth, users, _, _ := newAuth(t)

	res := register(t, auth, "bob", "bob@example.com", "hunter22", domain.RoleNurse)
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.Username != "bob" || res.Role != domain.RoleNurse {
		t.Errorf("got %s/%s, want bob/NURSE", res.Username, res.Role)
	}

	p, err := users.FindByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("principal not stored: %v", err)
	}
	if !p.Active {
		t.Error("new principal should be active")
	}
	if p.PasswordHash == "hunter22" {
		t.Error("password stored in plain text")
	}
}

func TestRegister_DuplicateUsernameOrEmail(t *testing.T) {
	auth, _, _, _ := newAuth(t)
	register(t, auth, "bob", "bob@example.com", "pw", domain.RoleDonor)

	tests := []struct {
		name     string
		username string
		email    string
	}{
		{"same username", "bob", "other@example.com"},
		{"same email", "robert", "bob@example.com"},
		{"same email different case", "robert", "BOB@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Register(context.Background(), usecase.RegisterInput{
				Username: tt.username, Email: tt.email, Password: "pw", Role: domain.RoleDonor,
			})
			if !errors.Is(err, domain.ErrDuplicateIdentity) {
				t.Errorf("want ErrDuplicateIdentity, got %v", err)
			}
		})
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	auth, _, _, _ := newAuth(t)

	_, err := auth.Register(context.Background(), usecase.RegisterInput{
		Username: "x", Email: "x@example.com", Password: "pw", Role: "JANITOR",
	})
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Errorf("want ErrInvalidRole, got %v", err)
	}
}

func TestRegister_RepoError_Propagates(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &fakeUserRepo{
		UserRepository: memory.NewUserRepository(),
		existsByUsername: func(context.Context, string) (bool, error) {
			return false, repoErr
		},
	}
	auth := usecase.NewAuthUsecase(repo, token.NewService([]byte(testJWTKey)), bcrypt.MinCost)

	_, err := auth.Register(context.Background(), usecase.RegisterInput{
		Username: "x", Email: "x@example.com", Password: "pw", Role: domain.RoleDonor,
	})
	if !errors.Is(err, repoErr) {
		t.Errorf("want wrapped repoErr, got %v", err)
	}
}

// ---- Login ----

func TestLogin_WrongPasswordAndUnknownUserLookTheSame(t *testing.T) {
	auth, _, _, _ := newAuth(t)
	register(t, auth, "alice", "a@x.com", "secret", domain.RoleDonor)

	_, wrongPw := auth.Login(context.Background(), "alice", "nope")
	_, unknown := auth.Login(context.Background(), "mallory", "secret")

	if !errors.Is(wrongPw, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: want ErrInvalidCredentials, got %v", wrongPw)
	}
	if !errors.Is(unknown, domain.ErrInvalidCredentials) {
		t.Errorf("unknown user: want ErrInvalidCredentials, got %v", unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Errorf("messages differ: %q vs %q", wrongPw, unknown)
	}
}

func TestLogin_InactivePrincipal(t *testing.T) {
	auth, users, _, _ := newAuth(t)
	register(t, auth, "alice", "a@x.com", "secret", domain.RoleDonor)
	p, _ := users.FindByUsername(context.Background(), "alice")
	if _, err := users.SetActive(context.Background(), p.ID, false); err != nil {
		t.Fatal(err)
	}

	_, err := auth.Login(context.Background(), "alice", "secret")
	if !errors.Is(err, domain.ErrPrincipalInactive) {
		t.Errorf("want ErrPrincipalInactive, got %v", err)
	}

	// a wrong password on an inactive account still reads as bad credentials
	_, err = auth.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_RepoError_Propagates(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &fakeUserRepo{
		UserRepository: memory.NewUserRepository(),
		findByUsername: func(context.Context, string) (*domain.Principal, error) {
			return nil, repoErr
		},
	}
	auth := usecase.NewAuthUsecase(repo, token.NewService([]byte(testJWTKey)), bcrypt.MinCost)

	_, err := auth.Login(context.Background(), "alice", "secret")
	if !errors.Is(err, repoErr) {
		t.Errorf("want wrapped repoErr, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Error("infrastructure failure must not read as bad credentials")
	}
}

// ---- Verify / Validate ----

func TestVerify_RejectsAfterExpiry(t *testing.T) {
	auth, _, tokens, clock := newAuth(t)
	res := register(t, auth, "alice", "a@x.com", "secret", domain.RoleDonor)

	clock.t = clock.t.Add(tokens.TTL() + time.Second)

	_, err := auth.Verify(context.Background(), res.Token)
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("want ErrTokenInvalid, got %v", err)
	}
	if auth.Validate(context.Background(), res.Token) {
		t.Error("Validate accepted an expired token")
	}
}

func TestValidate_DeactivationAfterIssue(t *testing.T) {
	auth, users, _, _ := newAuth(t)
	res := register(t, auth, "alice", "a@x.com", "secret", domain.RoleDonor)

	if !auth.Validate(context.Background(), res.Token) {
		t.Fatal("fresh token should validate")
	}

	p, _ := users.FindByUsername(context.Background(), "alice")
	if _, err := users.SetActive(context.Background(), p.ID, false); err != nil {
		t.Fatal(err)
	}

	if auth.Validate(context.Background(), res.Token) {
		t.Error("Validate should fail once the principal is deactivated")
	}
	if _, err := auth.Verify(context.Background(), res.Token); err != nil {
		t.Errorf("Verify checks signature and expiry only, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	auth, _, _, _ := newAuth(t)
	if auth.Validate(context.Background(), "not.a.jwt") {
		t.Error("garbage token validated")
	}
}

// ---- end to end ----

func TestRegisterLoginVerify_DonorCannotPassAdminPolicy(t *testing.T) {
	auth, users, _, _ := newAuth(t)
	ctx := context.Background()

	register(t, auth, "alice", "a@x.com", "secret", domain.RoleDonor)

	res, err := auth.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := auth.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Username() != "alice" || claims.Role != domain.RoleDonor {
		t.Fatalf("got %s/%s, want alice/DONOR", claims.Username(), claims.Role)
	}

	p, err := users.FindByUsername(ctx, claims.Username())
	if err != nil {
		t.Fatal(err)
	}
	ctx = access.WithPrincipal(ctx, p)

	err = access.Roles(domain.RoleAdmin).Check(access.FromContext(ctx), "")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("want ErrUnauthorized, got %v", err)
	}
}
