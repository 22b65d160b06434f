package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhive/internal/models"
	"taskhive/internal/repositories"
)

// ProviderHandler feeds the liveness read model: the provider app announces
// itself, heartbeats while connected, and streams position updates. The
// dispatch engine only ever reads the resulting snapshots.
type ProviderHandler struct {
	providers repositories.ProviderRepository
}

func NewProviderHandler(providers repositories.ProviderRepository) *ProviderHandler {
	return &ProviderHandler{providers: providers}
}

// POST /providers/online
func (h *ProviderHandler) Online(c *gin.Context) {
	var req struct {
		Capabilities []string `json:"capabilities" binding:"required"`
		Lon          float64  `json:"lon" binding:"required"`
		Lat          float64  `json:"lat" binding:"required"`
	}

	accountID, _ := getAccountAndRole(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[provider][online][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := &models.ProviderSnapshot{
		ID:           accountID,
		Capabilities: req.Capabilities,
		LastPosition: models.Point{Lon: req.Lon, Lat: req.Lat},
	}
	if err := h.providers.SetOnline(c.Request.Context(), snap); err != nil {
		log.Printf("[provider][online][err] id=%s: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register presence"})
		return
	}
	log.Printf("[provider][online][ok] id=%s capabilities=%v", accountID, req.Capabilities)
	c.JSON(http.StatusOK, snap)
}

// POST /providers/heartbeat
func (h *ProviderHandler) Heartbeat(c *gin.Context) {
	accountID, _ := getAccountAndRole(c)
	if err := h.providers.Heartbeat(c.Request.Context(), accountID); err != nil {
		if errors.Is(err, repositories.ErrProviderNotFound) {
			c.JSON(http.StatusGone, gin.H{"error": "presence expired, go online again"})
			return
		}
		log.Printf("[provider][heartbeat][err] id=%s: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh presence"})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /providers/position
func (h *ProviderHandler) Position(c *gin.Context) {
	var req struct {
		Lon float64 `json:"lon" binding:"required"`
		Lat float64 `json:"lat" binding:"required"`
	}

	accountID, _ := getAccountAndRole(c)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.providers.UpdatePosition(c.Request.Context(), accountID, models.Point{Lon: req.Lon, Lat: req.Lat}); err != nil {
		if errors.Is(err, repositories.ErrProviderNotFound) {
			c.JSON(http.StatusGone, gin.H{"error": "presence expired, go online again"})
			return
		}
		log.Printf("[provider][position][err] id=%s: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update position"})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /providers/offline
func (h *ProviderHandler) Offline(c *gin.Context) {
	accountID, _ := getAccountAndRole(c)
	if err := h.providers.SetOffline(c.Request.Context(), accountID); err != nil {
		log.Printf("[provider][offline][err] id=%s: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear presence"})
		return
	}
	log.Printf("[provider][offline][ok] id=%s", accountID)
	c.Status(http.StatusNoContent)
}

// GET /providers/me
func (h *ProviderHandler) Me(c *gin.Context) {
	accountID, _ := getAccountAndRole(c)
	snap, err := h.providers.Snapshot(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no presence recorded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read presence"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
