package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

// respondServiceError maps the onboarding error classes onto HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	logger := zap.L()
	switch {
	case errors.Is(err, onboard.ErrValidation):
		logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	case errors.Is(err, onboard.ErrNotFound):
		logger.Warn("resource not found", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": err.Error()})
	case errors.Is(err, onboard.ErrConflict):
		logger.Warn("conflict", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "error_description": err.Error()})
	case errors.Is(err, onboard.ErrAuthentication):
		logger.Warn("authentication failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": err.Error()})
	case errors.Is(err, onboard.ErrTransient):
		logger.Warn("temporarily unavailable", zap.Error(err))
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "error_description": "Service temporarily unavailable."})
	default:
		logger.Error("service failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
