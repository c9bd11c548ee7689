package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GET /healthz/ready
// Readiness of the database and, when configured, redis
func (ctl *Controller) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{}
	ready := true

	if ctl.Store != nil {
		if err := ctl.Store.Ping(ctx); err != nil {
			components["database"] = "error: " + err.Error()
			ready = false
		} else {
			components["database"] = "ok"
		}
	} else {
		components["database"] = "not configured"
	}

	if ctl.Redis != nil {
		if err := ctl.Redis.Ping(ctx).Err(); err != nil {
			components["redis"] = "error: " + err.Error()
			ready = false
		} else {
			components["redis"] = "ok"
		}
	} else {
		components["redis"] = "not configured"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
