package api

import (
	"errors"
	"net/http"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps the domain error taxonomy onto HTTP
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, models.ErrInsufficientStock):
		return http.StatusBadRequest, "Insufficient stock"
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, models.ErrDuplicateName):
		return http.StatusConflict, "Name already exists"
	case errors.Is(err, models.ErrRestoreTargetMissing):
		return http.StatusConflict, "Product to restore no longer exists"
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, models.ErrMediaDisabled):
		return http.StatusServiceUnavailable, "Media uploads are not configured"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
