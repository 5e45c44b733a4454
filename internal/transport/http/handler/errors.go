package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer  = "Internal server error"
	errInvalidQuantity = "Quantity must be a positive integer"
	errTooManyAttempts = "Too many login attempts, try again later"
)

// errorStatus maps each domain sentinel to the HTTP status it surfaces as.
// Order matters only for errors that wrap more than one sentinel.
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrDuplicateIdentity, http.StatusConflict},
	{domain.ErrDuplicateBatch, http.StatusConflict},
	{domain.ErrInsufficientQuantity, http.StatusConflict},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrTokenInvalid, http.StatusUnauthorized},
	{domain.ErrAuthenticationRequired, http.StatusUnauthorized},
	{domain.ErrPrincipalInactive, http.StatusForbidden},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrUnitNotFound, http.StatusNotFound},
	{domain.ErrInvalidQuantity, http.StatusBadRequest},
	{domain.ErrInvalidBloodType, http.StatusBadRequest},
	{domain.ErrInvalidRole, http.StatusBadRequest},
	{domain.ErrInvalidStatus, http.StatusBadRequest},
}

// writeError responds with the status mapped from err. Only the sentinel's
// message reaches the client; anything unmapped is logged and hidden behind a
// generic 500.
func writeError(ctx *gin.Context, logger *slog.Logger, op string, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			ctx.JSON(m.status, gin.H{"error": m.err.Error()})
			return
		}
	}
	logger.ErrorContext(ctx.Request.Context(), op, "error", err)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}

func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
