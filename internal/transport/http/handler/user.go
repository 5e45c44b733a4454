package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/repository"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/gin-gonic/gin"
)

type userUsecaser interface {
	Get(ctx context.Context, id string) (*domain.Principal, error)
	List(ctx context.Context, filter repository.UserFilter) ([]*domain.Principal, error)
	Stats(ctx context.Context) (usecase.UserStats, error)
	ActiveDonors(ctx context.Context, bt *domain.BloodType) ([]*domain.Principal, error)
	Update(ctx context.Context, caller *domain.Principal, id string, in usecase.UpdateUserInput) (*domain.Principal, error)
	ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error
	SetActive(ctx context.Context, id string, active bool) (*domain.Principal, error)
	BulkSetActive(ctx context.Context, ids []string, active bool) usecase.BulkResult
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	EmailAvailable(ctx context.Context, email string) (bool, error)
}

type UserHandler struct {
	users  userUsecaser
	logger *slog.Logger
}

func NewUserHandler(users userUsecaser, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger.With("component", "user_handler")}
}

type userResponse struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	Role        domain.Role       `json:"role"`
	BloodType   *domain.BloodType `json:"blood_type,omitempty"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type updateUserRequest struct {
	Email       *string `json:"email"        binding:"omitempty,email,max=254"`
	FirstName   *string `json:"first_name"   binding:"omitempty,max=100"`
	LastName    *string `json:"last_name"    binding:"omitempty,max=100"`
	PhoneNumber *string `json:"phone_number" binding:"omitempty,max=32"`
	BloodType   *string `json:"blood_type"`
	Role        *string `json:"role"`
	Active      *bool   `json:"active"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72"`
}

const defaultPageSize = 20

type searchRequest struct {
	Name      string `json:"name"`
	BloodType string `json:"blood_type"`
	Role      string `json:"role"`
	Active    *bool  `json:"active"`
	Page      int    `json:"page" binding:"min=0"`
	Size      int    `json:"size" binding:"min=0,max=100"`
}

type bulkRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=500,dive,required"`
}

func toUserResponse(p *domain.Principal) userResponse {
	return userResponse{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		PhoneNumber: p.PhoneNumber,
		Role:        p.Role,
		BloodType:   p.BloodType,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toUserResponses(ps []*domain.Principal) []userResponse {
	out := make([]userResponse, len(ps))
	for i, p := range ps {
		out[i] = toUserResponse(p)
	}
	return out
}

// GET /users?name=&blood_type=&role=&active=
func (h *UserHandler) List(ctx *gin.Context) {
	filter, err := parseUserFilter(ctx)
	if err != nil {
		writeError(ctx, h.logger, "list users", err)
		return
	}

	users, err := h.users.List(ctx.Request.Context(), filter)
	if err != nil {
		writeError(ctx, h.logger, "list users", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": toUserResponses(users)})
}

// GET /users/search?name=&blood_type=&role=&active=
// q is accepted as an alias for name.
func (h *UserHandler) Search(ctx *gin.Context) {
	filter, err := parseUserFilter(ctx)
	if err != nil {
		writeError(ctx, h.logger, "search users", err)
		return
	}

	users, err := h.users.List(ctx.Request.Context(), filter)
	if err != nil {
		writeError(ctx, h.logger, "search users", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": toUserResponses(users)})
}

// POST /users/search
// Same filters as GET, taken from the body, with 0-based pagination.
func (h *UserHandler) SearchAdvanced(ctx *gin.Context) {
	var req searchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	filter := repository.UserFilter{Name: req.Name, Active: req.Active}
	if req.BloodType != "" {
		bt, err := domain.ParseBloodType(req.BloodType)
		if err != nil {
			writeError(ctx, h.logger, "search users", err)
			return
		}
		filter.BloodType = &bt
	}
	if req.Role != "" {
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			writeError(ctx, h.logger, "search users", err)
			return
		}
		filter.Role = &role
	}

	users, err := h.users.List(ctx.Request.Context(), filter)
	if err != nil {
		writeError(ctx, h.logger, "search users", err)
		return
	}

	size := req.Size
	if size == 0 {
		size = defaultPageSize
	}
	from := min(req.Page*size, len(users))
	to := min(from+size, len(users))
	ctx.JSON(http.StatusOK, gin.H{
		"users": toUserResponses(users[from:to]),
		"page":  req.Page,
		"size":  size,
		"total": len(users),
	})
}

// GET /users/stats
func (h *UserHandler) Stats(ctx *gin.Context) {
	stats, err := h.users.Stats(ctx.Request.Context())
	if err != nil {
		writeError(ctx, h.logger, "user stats", err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// GET /users/donors and GET /users/donors/:bloodType
func (h *UserHandler) Donors(ctx *gin.Context) {
	var bt *domain.BloodType
	if raw := ctx.Param("bloodType"); raw != "" {
		parsed, err := domain.ParseBloodType(raw)
		if err != nil {
			writeError(ctx, h.logger, "list donors", err)
			return
		}
		bt = &parsed
	}

	donors, err := h.users.ActiveDonors(ctx.Request.Context(), bt)
	if err != nil {
		writeError(ctx, h.logger, "list donors", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": toUserResponses(donors)})
}

// GET /users/:id
func (h *UserHandler) Get(ctx *gin.Context) {
	h.get(ctx, ctx.Param("id"))
}

// GET /users/profile
func (h *UserHandler) Profile(ctx *gin.Context) {
	h.get(ctx, caller(ctx).ID)
}

func (h *UserHandler) get(ctx *gin.Context, id string) {
	p, err := h.users.Get(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, h.logger, "get user", err)
		return
	}
	ctx.JSON(http.StatusOK, toUserResponse(p))
}

// PUT /users/:id
func (h *UserHandler) Update(ctx *gin.Context) {
	h.update(ctx, ctx.Param("id"))
}

// PUT /users/profile
func (h *UserHandler) UpdateProfile(ctx *gin.Context) {
	h.update(ctx, caller(ctx).ID)
}

func (h *UserHandler) update(ctx *gin.Context, id string) {
	var req updateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	in := usecase.UpdateUserInput{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Active:      req.Active,
	}
	if req.BloodType != nil {
		bt, err := domain.ParseBloodType(*req.BloodType)
		if err != nil {
			writeError(ctx, h.logger, "update user", err)
			return
		}
		in.BloodType = &bt
	}
	if req.Role != nil {
		role, err := domain.ParseRole(*req.Role)
		if err != nil {
			writeError(ctx, h.logger, "update user", err)
			return
		}
		in.Role = &role
	}

	p, err := h.users.Update(ctx.Request.Context(), caller(ctx), id, in)
	if err != nil {
		writeError(ctx, h.logger, "update user", err)
		return
	}
	ctx.JSON(http.StatusOK, toUserResponse(p))
}

// PUT /users/:id/password
func (h *UserHandler) ChangePassword(ctx *gin.Context) {
	h.changePassword(ctx, ctx.Param("id"))
}

// PUT /users/password
func (h *UserHandler) ChangeOwnPassword(ctx *gin.Context) {
	h.changePassword(ctx, caller(ctx).ID)
}

func (h *UserHandler) changePassword(ctx *gin.Context, id string) {
	var req changePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	if err := h.users.ChangePassword(ctx.Request.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		writeError(ctx, h.logger, "change password", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// PUT /users/:id/activate
func (h *UserHandler) Activate(ctx *gin.Context) {
	h.setActive(ctx, true)
}

// PUT /users/:id/deactivate and DELETE /users/:id
// Principals are never hard-deleted.
func (h *UserHandler) Deactivate(ctx *gin.Context) {
	h.setActive(ctx, false)
}

func (h *UserHandler) setActive(ctx *gin.Context, active bool) {
	p, err := h.users.SetActive(ctx.Request.Context(), ctx.Param("id"), active)
	if err != nil {
		writeError(ctx, h.logger, "set active", err)
		return
	}
	ctx.JSON(http.StatusOK, toUserResponse(p))
}

// POST /users/bulk-activate
func (h *UserHandler) BulkActivate(ctx *gin.Context) {
	h.bulkSetActive(ctx, true)
}

// POST /users/bulk-deactivate
func (h *UserHandler) BulkDeactivate(ctx *gin.Context) {
	h.bulkSetActive(ctx, false)
}

func (h *UserHandler) bulkSetActive(ctx *gin.Context, active bool) {
	var req bulkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, h.users.BulkSetActive(ctx.Request.Context(), req.IDs, active))
}

// GET /users/validate-username/:username
func (h *UserHandler) ValidateUsername(ctx *gin.Context) {
	ok, err := h.users.UsernameAvailable(ctx.Request.Context(), ctx.Param("username"))
	if err != nil {
		writeError(ctx, h.logger, "validate username", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"available": ok})
}

// GET /users/validate-email/:email
func (h *UserHandler) ValidateEmail(ctx *gin.Context) {
	ok, err := h.users.EmailAvailable(ctx.Request.Context(), ctx.Param("email"))
	if err != nil {
		writeError(ctx, h.logger, "validate email", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"available": ok})
}

func parseUserFilter(ctx *gin.Context) (repository.UserFilter, error) {
	f := repository.UserFilter{Name: ctx.Query("name")}
	if f.Name == "" {
		f.Name = ctx.Query("q")
	}
	if raw := ctx.Query("blood_type"); raw != "" {
		bt, err := domain.ParseBloodType(raw)
		if err != nil {
			return f, err
		}
		f.BloodType = &bt
	}
	if raw := ctx.Query("role"); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			return f, err
		}
		f.Role = &role
	}
	if raw := ctx.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err == nil {
			f.Active = &active
		}
	}
	return f, nil
}

// caller is the principal bound by the access filter. Routes using it are
// always behind Require, so it is never nil there.
func caller(ctx *gin.Context) *domain.Principal {
	return access.FromContext(ctx.Request.Context())
}
