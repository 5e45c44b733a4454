package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/gin-gonic/gin"
)

type inventoryUsecaser interface {
	Add(ctx context.Context, in usecase.AddUnitInput) (*domain.BloodUnit, error)
	Update(ctx context.Context, id string, in usecase.UpdateUnitInput) (*domain.BloodUnit, error)
	Remove(ctx context.Context, id string, qty int) (*domain.BloodUnit, error)
	SweepExpired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error)
	Get(ctx context.Context, id string) (*domain.BloodUnit, error)
	List(ctx context.Context) ([]*domain.BloodUnit, error)
	ByType(ctx context.Context, bt domain.BloodType) ([]*domain.BloodUnit, error)
	Available(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error)
	Expired(ctx context.Context, now time.Time) ([]*domain.BloodUnit, error)
	TotalAvailable(ctx context.Context, bt domain.BloodType) (int, error)
}

type InventoryHandler struct {
	inventory inventoryUsecaser
	logger    *slog.Logger
	now       func() time.Time
}

func NewInventoryHandler(inventory inventoryUsecaser, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		logger:    logger.With("component", "inventory_handler"),
		now:       time.Now,
	}
}

type unitResponse struct {
	ID               string            `json:"id"`
	BloodType        domain.BloodType  `json:"blood_type"`
	BloodTypeDisplay string            `json:"blood_type_display"`
	Quantity         int               `json:"quantity"`
	UnitOfMeasure    string            `json:"unit_of_measure"`
	ExpiryDate       time.Time         `json:"expiry_date"`
	CollectionDate   *time.Time        `json:"collection_date,omitempty"`
	DonorID          *string           `json:"donor_id,omitempty"`
	BatchNumber      string            `json:"batch_number"`
	Status           domain.UnitStatus `json:"status"`
	Notes            string            `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type addUnitRequest struct {
	BloodType      string     `json:"blood_type"      binding:"required"`
	Quantity       int        `json:"quantity"`
	UnitOfMeasure  string     `json:"unit_of_measure" binding:"max=16"`
	ExpiryDate     time.Time  `json:"expiry_date"     binding:"required"`
	CollectionDate *time.Time `json:"collection_date"`
	DonorID        *string    `json:"donor_id"        binding:"omitempty,uuid"`
	BatchNumber    string     `json:"batch_number"    binding:"max=64"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes"           binding:"max=1000"`
}

type updateUnitRequest struct {
	BloodType     string    `json:"blood_type"      binding:"required"`
	Quantity      int       `json:"quantity"`
	UnitOfMeasure string    `json:"unit_of_measure" binding:"max=16"`
	ExpiryDate    time.Time `json:"expiry_date"     binding:"required"`
	Status        string    `json:"status"          binding:"required"`
	Notes         string    `json:"notes"           binding:"max=1000"`
}

func toUnitResponse(u *domain.BloodUnit) unitResponse {
	return unitResponse{
		ID:               u.ID,
		BloodType:        u.BloodType,
		BloodTypeDisplay: u.BloodType.Display(),
		Quantity:         u.Quantity,
		UnitOfMeasure:    u.UnitOfMeasure,
		ExpiryDate:       u.ExpiryDate,
		CollectionDate:   u.CollectionDate,
		DonorID:          u.DonorID,
		BatchNumber:      u.BatchNumber,
		Status:           u.Status,
		Notes:            u.Notes,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func toUnitResponses(units []*domain.BloodUnit) []unitResponse {
	out := make([]unitResponse, len(units))
	for i, u := range units {
		out[i] = toUnitResponse(u)
	}
	return out
}

// POST /inventory/add
func (h *InventoryHandler) Add(ctx *gin.Context) {
	var req addUnitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	bt, err := domain.ParseBloodType(req.BloodType)
	if err != nil {
		writeError(ctx, h.logger, "add unit", err)
		return
	}
	in := usecase.AddUnitInput{
		BloodType:      bt,
		Quantity:       req.Quantity,
		UnitOfMeasure:  req.UnitOfMeasure,
		ExpiryDate:     req.ExpiryDate,
		CollectionDate: req.CollectionDate,
		DonorID:        req.DonorID,
		BatchNumber:    req.BatchNumber,
		Notes:          req.Notes,
	}
	if req.Status != "" {
		if in.Status, err = domain.ParseUnitStatus(req.Status); err != nil {
			writeError(ctx, h.logger, "add unit", err)
			return
		}
	}

	unit, err := h.inventory.Add(ctx.Request.Context(), in)
	if err != nil {
		writeError(ctx, h.logger, "add unit", err)
		return
	}
	ctx.JSON(http.StatusCreated, toUnitResponse(unit))
}

// PUT /inventory/:id
func (h *InventoryHandler) Update(ctx *gin.Context) {
	var req updateUnitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	bt, err := domain.ParseBloodType(req.BloodType)
	if err != nil {
		writeError(ctx, h.logger, "update unit", err)
		return
	}
	status, err := domain.ParseUnitStatus(req.Status)
	if err != nil {
		writeError(ctx, h.logger, "update unit", err)
		return
	}

	unit, err := h.inventory.Update(ctx.Request.Context(), ctx.Param("id"), usecase.UpdateUnitInput{
		BloodType:     bt,
		Quantity:      req.Quantity,
		UnitOfMeasure: req.UnitOfMeasure,
		ExpiryDate:    req.ExpiryDate,
		Status:        status,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(ctx, h.logger, "update unit", err)
		return
	}
	ctx.JSON(http.StatusOK, toUnitResponse(unit))
}

// POST /inventory/:id/remove?quantity=n
func (h *InventoryHandler) Remove(ctx *gin.Context) {
	qty, err := strconv.Atoi(ctx.Query("quantity"))
	if err != nil || qty <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidQuantity})
		return
	}

	unit, err := h.inventory.Remove(ctx.Request.Context(), ctx.Param("id"), qty)
	if err != nil {
		writeError(ctx, h.logger, "remove from unit", err)
		return
	}
	ctx.JSON(http.StatusOK, toUnitResponse(unit))
}

// POST /inventory/sweep
func (h *InventoryHandler) Sweep(ctx *gin.Context) {
	changed, err := h.inventory.SweepExpired(ctx.Request.Context(), h.now())
	if err != nil {
		writeError(ctx, h.logger, "sweep expired", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"expired": len(changed), "units": toUnitResponses(changed)})
}

// GET /inventory/:id
func (h *InventoryHandler) Get(ctx *gin.Context) {
	unit, err := h.inventory.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.logger, "get unit", err)
		return
	}
	ctx.JSON(http.StatusOK, toUnitResponse(unit))
}

// GET /inventory
func (h *InventoryHandler) List(ctx *gin.Context) {
	h.respondUnits(ctx, "list units", func(c context.Context) ([]*domain.BloodUnit, error) {
		return h.inventory.List(c)
	})
}

// GET /inventory/type/:bloodType
func (h *InventoryHandler) ByType(ctx *gin.Context) {
	bt, err := domain.ParseBloodType(ctx.Param("bloodType"))
	if err != nil {
		writeError(ctx, h.logger, "units by type", err)
		return
	}
	h.respondUnits(ctx, "units by type", func(c context.Context) ([]*domain.BloodUnit, error) {
		return h.inventory.ByType(c, bt)
	})
}

// GET /inventory/available
func (h *InventoryHandler) Available(ctx *gin.Context) {
	h.respondUnits(ctx, "available units", func(c context.Context) ([]*domain.BloodUnit, error) {
		return h.inventory.Available(c, h.now())
	})
}

// GET /inventory/expired
func (h *InventoryHandler) Expired(ctx *gin.Context) {
	h.respondUnits(ctx, "expired units", func(c context.Context) ([]*domain.BloodUnit, error) {
		return h.inventory.Expired(c, h.now())
	})
}

// GET /inventory/total/:bloodType
func (h *InventoryHandler) Total(ctx *gin.Context) {
	bt, err := domain.ParseBloodType(ctx.Param("bloodType"))
	if err != nil {
		writeError(ctx, h.logger, "total available", err)
		return
	}

	total, err := h.inventory.TotalAvailable(ctx.Request.Context(), bt)
	if err != nil {
		writeError(ctx, h.logger, "total available", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"blood_type":         bt,
		"blood_type_display": bt.Display(),
		"total":              total,
	})
}

func (h *InventoryHandler) respondUnits(ctx *gin.Context, op string, fetch func(context.Context) ([]*domain.BloodUnit, error)) {
	units, err := fetch(ctx.Request.Context())
	if err != nil {
		writeError(ctx, h.logger, op, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"units": toUnitResponses(units)})
}
