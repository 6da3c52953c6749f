package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-hotspot/catalog"
)

type planView struct {
	catalog.Plan
	ListPriceUGX int64 `json:"list_price_ugx"`
}

func (h *Handler) ListPlans(c *gin.Context) {
	plans := h.Catalog.List()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{Plan: p, ListPriceUGX: p.ListPrice()})
	}
	c.JSON(http.StatusOK, gin.H{"plans": views})
}

func (h *Handler) ReplacePlans(c *gin.Context) {
	var req struct {
		Plans []catalog.Plan `json:"plans" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.Catalog.Replace(req.Plans); err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Info("plan catalog replaced", zap.Int("plans", len(req.Plans)), zap.String("by", userID(c)))
	c.JSON(http.StatusOK, gin.H{"plans": h.Catalog.List()})
}
