// Package controllers maps the billing operations onto gin handlers.
package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"go-hotspot/account"
	"go-hotspot/billing"
	"go-hotspot/catalog"
	"go-hotspot/loyalty"
	"go-hotspot/payment"
	"go-hotspot/scheduler"
	"go-hotspot/subscription"
	"go-hotspot/voucher"
)

type Handler struct {
	Catalog   *catalog.Catalog
	Generator *voucher.Generator
	Ledger    *voucher.Ledger
	Subs      *subscription.Manager
	Loyalty   *loyalty.Engine
	Payments  *payment.Service
	Accounts  *account.Service
	Jobs      *scheduler.Scheduler
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

// Register mounts every route. auth must verify the bearer token; limit is applied to
// all public and customer routes.
func (h *Handler) Register(r gin.IRouter, auth, limit gin.HandlerFunc, metrics http.Handler) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(metrics))
	r.GET("/plans", limit, h.ListPlans)

	user := r.Group("/", limit, auth)
	user.GET("/profile", h.Profile)
	user.PUT("/profile", h.UpdateProfile)
	user.POST("/profile/device", h.ChangeDevice)
	user.POST("/vouchers/activate", h.Activate)
	user.GET("/subscription", h.Subscription)
	user.GET("/loyalty", h.LoyaltyBalance)
	user.POST("/loyalty/redeem", h.Redeem)
	user.POST("/purchase", h.Purchase)
	user.GET("/payments", h.ListPayments)

	admin := r.Group("/admin", auth, adminOnly)
	admin.POST("/vouchers", h.GenerateVouchers)
	admin.GET("/vouchers", h.ListVouchers)
	admin.GET("/vouchers/export", h.ExportVouchers)
	admin.GET("/vouchers/:code/qr", h.VoucherQR)
	admin.POST("/vouchers/expire", h.ExpireVouchers)
	admin.PUT("/plans", h.ReplacePlans)
	admin.POST("/payments/:id/complete", h.CompletePayment)
	admin.POST("/payments/:id/fail", h.FailPayment)
	admin.POST("/usage", h.RecordUsage)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:id/disconnect", h.DisconnectUser)
	admin.POST("/users/:id/extend", h.ExtendUser)
	admin.POST("/sweep", h.Sweep)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var statusByError = []struct {
	err    error
	status int
}{
	{billing.ErrInvalidInput, http.StatusBadRequest},
	{billing.ErrInvalidPlan, http.StatusBadRequest},
	{billing.ErrNotFound, http.StatusNotFound},
	{billing.ErrNoActivePlan, http.StatusNotFound},
	{billing.ErrAlreadyUsed, http.StatusConflict},
	{billing.ErrDeviceConflict, http.StatusConflict},
	{billing.ErrCodeSpaceExhausted, http.StatusConflict},
	{billing.ErrExpired, http.StatusGone},
	{billing.ErrInsufficientPoints, http.StatusPaymentRequired},
	{billing.ErrOutcomeUnknown, http.StatusServiceUnavailable},
	{billing.ErrTransient, http.StatusServiceUnavailable},
}

// respondError writes the status for a known billing error, or 500 after logging.
func (h *Handler) respondError(c *gin.Context, err error) {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": err.Error()})
			return
		}
	}

	h.Logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
}
