package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/rail-reservation/internal/database"
)

// HealthHandler reports service and store health
type HealthHandler struct {
	store   database.Store
	version string
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(store database.Store, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "healthy"
	if pinger, ok := h.store.(database.Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"database":  dbStatus,
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}
