package controllers

import (
	"github.com/gin-gonic/gin"

	"go-hotspot/web/middleware"
)

var adminOnly = middleware.AdminAuth

func userID(c *gin.Context) string {
	return middleware.UserID(c)
}
