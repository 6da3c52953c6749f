package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Sweep runs every maintenance job once, outside the cron schedule.
func (h *Handler) Sweep(c *gin.Context) {
	results := h.Jobs.RunAll(c.Request.Context())

	status := http.StatusOK
	for _, r := range results {
		if r.Error != "" {
			status = http.StatusInternalServerError
		}
	}
	c.JSON(status, gin.H{"results": results})
}
