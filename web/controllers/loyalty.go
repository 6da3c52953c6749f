package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) LoyaltyBalance(c *gin.Context) {
	ctx := c.Request.Context()
	balance, err := h.Loyalty.Balance(ctx, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	rewards, err := h.Loyalty.Rewards(ctx, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance": balance,
		"tiers":   h.Loyalty.Tiers(),
		"rewards": rewards,
	})
}

func (h *Handler) Redeem(c *gin.Context) {
	var req struct {
		Points int64 `json:"points" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	reward, err := h.Loyalty.Redeem(c.Request.Context(), userID(c), req.Points)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": reward})
}
