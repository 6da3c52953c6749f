package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-hotspot/web/db"
)

func (h *Handler) Purchase(c *gin.Context) {
	var req struct {
		PlanID string           `json:"plan_id" binding:"required"`
		Method db.PaymentMethod `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	p, err := h.Payments.Purchase(c.Request.Context(), userID(c), req.PlanID, req.Method)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Payment submitted", "payment": p})
}

func (h *Handler) ListPayments(c *gin.Context) {
	payments, err := h.Payments.List(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) CompletePayment(c *gin.Context) {
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}

	p, err := h.Payments.Complete(c.Request.Context(), c.Param("id"), req.TransactionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment status updated", "payment": p})
}

func (h *Handler) FailPayment(c *gin.Context) {
	p, err := h.Payments.Fail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment status updated", "payment": p})
}
