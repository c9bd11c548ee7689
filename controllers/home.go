package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /
// Liveness message
func (ctl *Controller) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Backend running with ML model!"})
}
