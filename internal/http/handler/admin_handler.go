package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/http/middleware"
	"github.com/smallbiznis/valora-onboard/internal/service"
	"github.com/smallbiznis/valora-onboard/internal/service/redemption"
)

// AdminHandler serves the administrator API.
type AdminHandler struct {
	Admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{Admin: admin}
}

// StartBatch queues a push of pooled subjects into a group.
func (h *AdminHandler) StartBatch(c *gin.Context) {
	var req struct {
		GroupID  string   `json:"group_id" binding:"required"`
		Quantity int      `json:"quantity" binding:"required"`
		Roles    []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "group_id and quantity are required."})
		return
	}

	status, err := h.Admin.StartBatch(c.Request.Context(), service.StartBatchInput{
		GroupID:     req.GroupID,
		Quantity:    req.Quantity,
		Roles:       req.Roles,
		RequestedBy: middleware.AdminActor(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, batchAccepted(status, "/admin/batches/"))
}

func (h *AdminHandler) BatchStatus(c *gin.Context) {
	status, err := h.Admin.BatchStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// IssueCodes mints redemption codes and returns their links.
func (h *AdminHandler) IssueCodes(c *gin.Context) {
	var req struct {
		Quantity  int    `json:"quantity"`
		Count     int    `json:"count"`
		CreatorID string `json:"creator_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid JSON body."})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.CreatorID == "" {
		req.CreatorID = middleware.AdminActor(c)
	}

	codes, err := h.Admin.IssueCodes(c.Request.Context(), redemption.IssueInput{
		Quantity:  req.Quantity,
		Count:     req.Count,
		CreatorID: req.CreatorID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"codes": codes})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.Admin.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.Admin.Settings(c.Request.Context()))
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req domain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid JSON body."})
		return
	}
	updated, err := h.Admin.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
