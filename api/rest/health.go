// Package rest serves the plain HTTP endpoints: health and admin.
package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness and the bootstrap schema served on /ws.
// GET /health
func Health(schema string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "schema": schema})
	}
}
