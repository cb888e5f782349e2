package main

import (
	"net/http"
	"time"

	"chatcall/pkg/logger"
	"chatcall/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The websocket authenticates from a Bearer header or token query parameter; a missing
	// or bad token leaves the connection open but unidentified.
	r.GET("/ws/calls", a.ws.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	a.handlers.Register(v1)
}
