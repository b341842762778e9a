package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-onboard/internal/service"
)

type HealthHandler struct {
	Service *service.HealthService
}

func NewHealthHandler(health *service.HealthService) *HealthHandler {
	return &HealthHandler{Service: health}
}

// Health reports store connectivity; 503 when any store is unreachable.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.Service.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
