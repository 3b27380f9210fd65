package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/fleet-api/internal/middleware"
)

// RegisterRoutes mounts the account-facing and internal routes.
// codeLimit is applied to the code request and verify endpoints.
func (h *VerificationHandler) RegisterRoutes(router gin.IRouter, auth *middleware.AuthMiddleware, codeLimit gin.HandlerFunc) {
	api := router.Group("/api", auth.RequireAuth())
	{
		verification := api.Group("/verification")
		{
			verification.POST("/codes", codeLimit, h.RequestCode)
			verification.POST("/codes/verify", codeLimit, h.VerifyCode)
			verification.GET("/status", h.Status)
		}

		devices := api.Group("/devices")
		{
			devices.GET("", h.ListDevices)
			devices.POST("/revoke-all", h.RevokeAllDevices)
			devices.DELETE("/:device_id", h.RevokeDevice)
		}
	}

	internal := router.Group("/internal/accounts/:account_id",
		auth.RequireAPIKey(),
		middleware.ExtractUintParam("account_id", middleware.AccountIDKey),
	)
	{
		internal.POST("/challenge", h.Challenge)
		internal.POST("/codes", codeLimit, h.RequestCode)
		internal.POST("/codes/verify", codeLimit, h.VerifyCode)
		internal.POST("/devices", h.TrustDevice)
		internal.GET("/status", h.Status)
	}
}
