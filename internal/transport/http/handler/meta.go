package handler

import (
	"net/http"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/health"
	"github.com/gin-gonic/gin"
)

type bloodTypeItem struct {
	Name    domain.BloodType `json:"name"`
	Display string           `json:"display"`
}

// GET /meta/roles
func Roles(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"roles": domain.Roles})
}

// GET /meta/blood-types
func BloodTypes(ctx *gin.Context) {
	items := make([]bloodTypeItem, len(domain.BloodTypes))
	for i, bt := range domain.BloodTypes {
		items[i] = bloodTypeItem{Name: bt, Display: bt.Display()}
	}
	ctx.JSON(http.StatusOK, gin.H{"blood_types": items})
}

// Health serves GET /health from the readiness probe.
func Health(checker *health.Checker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result := checker.Readiness(ctx.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, result)
	}
}
