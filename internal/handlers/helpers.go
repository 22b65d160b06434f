package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhive/internal/services"
)

func getAccountAndRole(c *gin.Context) (accountID string, roleID int) {
	if v, ok := c.Get("account_id"); ok {
		accountID, _ = v.(string)
	}
	if v, ok := c.Get("role_id"); ok {
		roleID, _ = v.(int)
	}
	return
}

// writeServiceError maps engine error kinds to HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	var pre *services.PreconditionError
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid transition"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "task changed concurrently, please retry"})
	case errors.As(err, &pre):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":      pre.Error(),
			"distance_m": pre.DistanceM,
			"radius_m":   pre.RadiusM,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
