package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Subscription(c *gin.Context) {
	report, err := h.Subs.Usage(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscription":      report.Subscription,
		"active":            report.Active,
		"remaining_seconds": int64(report.Remaining.Seconds()),
		"data_used_bytes":   report.DataUsedBytes,
	})
}

func (h *Handler) RecordUsage(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Bytes  int64  `json:"bytes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.Subs.RecordUsage(c.Request.Context(), req.UserID, req.Bytes); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
