package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/service"
	"github.com/smallbiznis/valora-onboard/internal/service/redemption"
)

// RedeemHandler serves the public redemption endpoints.
type RedeemHandler struct {
	Redemption *redemption.Service
	Queue      service.BatchQueue
}

func NewRedeemHandler(redemptionService *redemption.Service, queue service.BatchQueue) *RedeemHandler {
	return &RedeemHandler{Redemption: redemptionService, Queue: queue}
}

// Show describes a code without consuming it.
func (h *RedeemHandler) Show(c *gin.Context) {
	rc, err := h.Redemption.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":     rc.Code,
		"quantity": rc.RequestedQuantity,
		"used":     rc.Used,
	})
}

// Redeem claims a code and queues its batch.
func (h *RedeemHandler) Redeem(c *gin.Context) {
	var req struct {
		GroupID     string `json:"group_id" form:"group_id"`
		RequestedBy string `json:"requested_by" form:"requested_by"`
	}
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.GroupID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "group_id is required."})
		return
	}

	status, err := h.Redemption.Redeem(c.Request.Context(), c.Param("code"), req.GroupID, strings.TrimSpace(req.RequestedBy))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, batchAccepted(status, "/redeem/batches/"))
}

// BatchStatus reports progress of a batch started by redemption.
func (h *RedeemHandler) BatchStatus(c *gin.Context) {
	status, err := h.Queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if status.Batch.Source != onboard.SourceRedeem {
		respondServiceError(c, onboard.ErrBatchNotFound)
		return
	}
	c.JSON(http.StatusOK, status)
}

func batchAccepted(status onboard.BatchStatus, statusPath string) gin.H {
	return gin.H{
		"batch_id":   status.Batch.ID,
		"status":     status.Status,
		"quantity":   status.Batch.Quantity,
		"group_id":   status.Batch.GroupID,
		"status_url": statusPath + status.Batch.ID,
	}
}
