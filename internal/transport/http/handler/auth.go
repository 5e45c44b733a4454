package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/ErlanBelekov/bloodbank/internal/ratelimit"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/gin-gonic/gin"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	Register(ctx context.Context, in usecase.RegisterInput) (usecase.AuthResult, error)
	Login(ctx context.Context, username, password string) (usecase.AuthResult, error)
	Verify(ctx context.Context, raw string) (*token.Claims, error)
	Validate(ctx context.Context, raw string) bool
}

type AuthHandler struct {
	authUsecase authUsecaser
	limiter     ratelimit.Limiter
	logger      *slog.Logger
}

func NewAuthHandler(authUsecase authUsecaser, limiter ratelimit.Limiter, logger *slog.Logger) *AuthHandler {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &AuthHandler{
		authUsecase: authUsecase,
		limiter:     limiter,
		logger:      logger.With("component", "auth_handler"),
	}
}

type registerRequest struct {
	Username    string `json:"username"     binding:"required,min=3,max=50"`
	Email       string `json:"email"        binding:"required,email,max=254"`
	Password    string `json:"password"     binding:"required,min=6,max=72"`
	FirstName   string `json:"first_name"   binding:"max=100"`
	LastName    string `json:"last_name"    binding:"max=100"`
	PhoneNumber string `json:"phone_number" binding:"max=32"`
	Role        string `json:"role"         binding:"required"`
	BloodType   string `json:"blood_type"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
}

type authResponse struct {
	Token     string      `json:"token"`
	Type      string      `json:"type"`
	ExpiresAt time.Time   `json:"expires_at"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
}

type verifyResponse struct {
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
	Active    bool        `json:"active"`
}

func toAuthResponse(r usecase.AuthResult) authResponse {
	return authResponse{
		Token:     r.Token,
		Type:      "Bearer",
		ExpiresAt: r.ExpiresAt,
		Username:  r.Username,
		Role:      r.Role,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(ctx, h.logger, "register", err)
		return
	}
	in := usecase.RegisterInput{
		Username:    strings.TrimSpace(req.Username),
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Role:        role,
	}
	if req.BloodType != "" {
		bt, err := domain.ParseBloodType(req.BloodType)
		if err != nil {
			writeError(ctx, h.logger, "register", err)
			return
		}
		in.BloodType = &bt
	}

	res, err := h.authUsecase.Register(ctx.Request.Context(), in)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(outcome(err)).Inc()
		writeError(ctx, h.logger, "register", err)
		return
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	ctx.JSON(http.StatusCreated, toAuthResponse(res))
}

// POST /auth/login
// Unknown usernames and wrong passwords get the same 401.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	key := req.Username + "|" + ctx.ClientIP()
	decision, err := h.limiter.Allow(ctx.Request.Context(), key)
	if err != nil {
		// fail open: a broken limiter must not lock everyone out
		h.logger.WarnContext(ctx.Request.Context(), "login rate limiter unavailable", "error", err)
	} else if !decision.Allowed {
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		ctx.Header("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
		ctx.JSON(http.StatusTooManyRequests, gin.H{"error": errTooManyAttempts})
		return
	}

	res, err := h.authUsecase.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(outcome(err)).Inc()
		writeError(ctx, h.logger, "login", err)
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	ctx.JSON(http.StatusOK, toAuthResponse(res))
}

// POST /auth/verify
// 200 with the token's identity when signature and expiry hold; "active"
// additionally reflects the live account state.
func (h *AuthHandler) Verify(ctx *gin.Context) {
	var req verifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrTokenInvalid.Error()})
		return
	}

	claims, err := h.authUsecase.Verify(ctx.Request.Context(), req.Token)
	if err != nil {
		if !errors.Is(err, domain.ErrTokenInvalid) {
			h.logger.ErrorContext(ctx.Request.Context(), "verify token", "error", err)
		}
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrTokenInvalid.Error()})
		return
	}

	resp := verifyResponse{
		Username: claims.Username(),
		Role:     claims.Role,
		Active:   h.authUsecase.Validate(ctx.Request.Context(), req.Token),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	ctx.JSON(http.StatusOK, resp)
}

// retryAfterSeconds rounds up so a client never gets told to retry after 0s
// while the window is still closed.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrPrincipalInactive):
		return "inactive"
	case errors.Is(err, domain.ErrDuplicateIdentity):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidRole), errors.Is(err, domain.ErrInvalidBloodType):
		return "invalid"
	default:
		return "error"
	}
}
