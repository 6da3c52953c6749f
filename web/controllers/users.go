package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"go-hotspot/account"
	"go-hotspot/subscription"
	"go-hotspot/web/db"
)

type userView struct {
	Profile          db.Profile       `json:"profile"`
	Subscription     *db.Subscription `json:"subscription,omitempty"`
	Active           bool             `json:"active"`
	RemainingSeconds int64            `json:"remaining_seconds"`
}

// ListUsers is the staff user table: profiles with their running window, if any.
func (h *Handler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	ctx := c.Request.Context()
	profiles, err := h.Accounts.List(ctx, account.Filter{Query: c.Query("q"), Limit: limit, Offset: offset})
	if err != nil {
		h.respondError(c, err)
		return
	}
	windows, err := h.Subs.ActiveWindows(ctx, lo.Map(profiles, func(p db.Profile, _ int) string { return p.UserID }))
	if err != nil {
		h.respondError(c, err)
		return
	}

	now := h.Clock.Now()
	users := lo.Map(profiles, func(p db.Profile, _ int) userView {
		v := userView{Profile: p}
		if sub, ok := windows[p.UserID]; ok {
			v.Subscription = &sub
			v.Active = subscription.IsActive(sub, now)
			v.RemainingSeconds = int64(subscription.Remaining(sub, now).Seconds())
		}
		return v
	})
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) DisconnectUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Accounts.Get(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	sub, err := h.Subs.Disconnect(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *Handler) ExtendUser(c *gin.Context) {
	var req struct {
		Hours int `json:"hours" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	id := c.Param("id")
	if _, err := h.Accounts.Get(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	sub, err := h.Subs.Extend(c.Request.Context(), id, req.Hours, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
