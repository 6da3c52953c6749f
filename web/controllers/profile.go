package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Profile(c *gin.Context) {
	p, err := h.Accounts.Get(c.Request.Context(), userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number" binding:"required"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	p, err := h.Accounts.Register(c.Request.Context(), userID(c), req.PhoneNumber, req.FirstName, req.LastName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

func (h *Handler) ChangeDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	p, err := h.Accounts.ChangeDevice(c.Request.Context(), userID(c), req.DeviceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}
