package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-hotspot/voucher"
	"go-hotspot/web/db"
)

func (h *Handler) Activate(c *gin.Context) {
	var req struct {
		Code     string `json:"code" binding:"required"`
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	sub, err := h.Ledger.Activate(c.Request.Context(), req.Code, req.DeviceID, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Voucher activated successfully", "subscription": sub})
}

func (h *Handler) GenerateVouchers(c *gin.Context) {
	var req struct {
		PlanID    string `json:"plan_id" binding:"required"`
		Quantity  int    `json:"quantity" binding:"required"`
		ValidDays int    `json:"valid_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	vouchers, err := h.Generator.GenerateAll(c.Request.Context(), req.PlanID, req.Quantity, req.ValidDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"vouchers": vouchers})
}

func filterFromQuery(c *gin.Context) voucher.Filter {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return voucher.Filter{
		Query:  c.Query("q"),
		State:  db.VoucherState(c.Query("state")),
		PlanID: c.Query("plan_id"),
		Limit:  limit,
		Offset: offset,
	}
}

func (h *Handler) ListVouchers(c *gin.Context) {
	vouchers, err := h.Ledger.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}

func (h *Handler) ExportVouchers(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=vouchers-%s.csv", h.Clock.Now().UTC().Format("20060102")))

	if _, err := h.Ledger.ExportCSV(c.Request.Context(), c.Writer, filterFromQuery(c)); err != nil && !c.Writer.Written() {
		c.Header("Content-Disposition", "")
		h.respondError(c, err)
	}
}

func (h *Handler) VoucherQR(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	png, err := h.Ledger.QRCode(c.Request.Context(), c.Param("code"), size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) ExpireVouchers(c *gin.Context) {
	n, err := h.Ledger.ExpireStale(c.Request.Context(), h.Clock.Now().UTC())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
