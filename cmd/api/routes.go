package main

import (
	"database/sql"
	"time"

	"calling-platform/internal/httpapi"
	"calling-platform/internal/monitoring"
	"calling-platform/internal/rbac"
	"calling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", monitoring.GinHandler())

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	r.POST("/webhooks/twilio/status", h.TwilioStatusCallback)

	// protected API group
	v1 := r.Group("/v1")

	// AUTH routes (token issuance) sit outside the auth middleware.
	v1.POST("/auth/login", h.Login)

	v1.Use(authMW)
	{
		// CALLS routes
		callsGroup := v1.Group("/calls")
		{
			callsGroup.POST("/dial", h.Dial)
			callsGroup.GET("", h.ListCalls)
		}

		// CREDITS routes
		credits := v1.Group("/credits")
		{
			credits.GET("/balance", h.GetBalance)
			credits.POST("/topup", h.TopUp)
			credits.GET("/:credit_id", h.GetCredit)
		}

		// REPORTS routes
		reports := v1.Group("/reports")
		{
			reports.GET("/calls", h.CallsSummary)
			reports.GET("/spend", h.SpendSummary)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAdmin())
		{
			admin.POST("/call-rates", h.UpsertCallRate)
			admin.GET("/call-rates", h.ListCallRates)
			admin.GET("/call-rates/:rate_id", h.GetCallRate)
			admin.DELETE("/call-rates/:rate_id", h.DeleteCallRate)
		}
	}
}
