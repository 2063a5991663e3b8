package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowbook/utils"
)

// Health reports the last dependency snapshot taken by the health monitor.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Hi, I'm escrowbook",
		"health":  utils.GetHealthStatus(),
	})
}
