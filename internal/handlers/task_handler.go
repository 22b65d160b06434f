package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhive/internal/authz"
	"taskhive/internal/models"
	"taskhive/internal/services"
)

type TaskHandler struct {
	service services.TaskService
	matcher services.MatcherService
}

func NewTaskHandler(service services.TaskService, matcher services.MatcherService) *TaskHandler {
	return &TaskHandler{service: service, matcher: matcher}
}

// POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req struct {
		Capability string  `json:"capability" binding:"required"`
		Lon        float64 `json:"lon" binding:"required"`
		Lat        float64 `json:"lat" binding:"required"`
		PriceMin   float64 `json:"price_min"`
		PriceMax   float64 `json:"price_max"`
	}

	accountID, roleID := getAccountAndRole(c)
	log.Printf("[task][create] call by account=%s role=%d", accountID, roleID)

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][create][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := &models.Task{
		Capability:  req.Capability,
		RequesterID: accountID,
		Origin:      models.Point{Lon: req.Lon, Lat: req.Lat},
		Price:       models.PriceRange{Min: req.PriceMin, Max: req.PriceMax},
	}

	created, err := h.service.Create(c.Request.Context(), task)
	if err != nil {
		log.Printf("[task][create][err] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}
	log.Printf("[task][create][ok] id=%s capability=%q", created.ID, created.Capability)

	// one synchronous matching attempt; no candidate or a lost race leaves
	// the task pending for the reconciler to pick up
	if assigned, err := h.matcher.Match(c.Request.Context(), created); err == nil {
		created = assigned
	} else if !errors.Is(err, services.ErrNoCandidate) && !errors.Is(err, services.ErrConflict) {
		log.Printf("[task][create][match][err] id=%s: %v", created.ID, err)
	}

	c.JSON(http.StatusCreated, created)
}

// GET /tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	task, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	accountID, _ := getAccountAndRole(c)
	if task.RequesterID != accountID && task.ProviderID != accountID && !task.HasPrevProvider(accountID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// GET /tasks
func (h *TaskHandler) GetAll(c *gin.Context) {
	accountID, roleID := getAccountAndRole(c)

	filter := models.TaskFilter{}
	if authz.IsProvider(roleID) {
		filter.ProviderID = &accountID
	} else {
		filter.RequesterID = &accountID
	}
	if s := c.Query("status"); s != "" {
		status := models.TaskStatus(s)
		filter.Status = &status
	}

	tasks, err := h.service.GetAll(c.Request.Context(), filter)
	if err != nil {
		log.Printf("[task][list][err] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// POST /tasks/:id/accept
func (h *TaskHandler) Accept(c *gin.Context) {
	h.providerAction(c, "accept", h.service.Accept)
}

// POST /tasks/:id/reject
func (h *TaskHandler) Reject(c *gin.Context) {
	h.providerAction(c, "reject", h.service.Reject)
}

// POST /tasks/:id/start
func (h *TaskHandler) Start(c *gin.Context) {
	h.providerAction(c, "start", h.service.Start)
}

// POST /tasks/:id/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	h.providerAction(c, "complete", h.service.Complete)
}

// POST /tasks/:id/approve
func (h *TaskHandler) Approve(c *gin.Context) {
	h.requesterAction(c, "approve", h.service.Approve)
}

// POST /tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	h.requesterAction(c, "cancel", h.service.Cancel)
}

type taskAction func(ctx context.Context, id, actorID string) (*models.Task, error)

func (h *TaskHandler) providerAction(c *gin.Context, name string, fn taskAction) {
	accountID, _ := getAccountAndRole(c)
	id := c.Param("id")
	log.Printf("[task][%s] call by provider=%s id=%s", name, accountID, id)

	task, err := fn(c.Request.Context(), id, accountID)
	if err != nil {
		log.Printf("[task][%s][err] id=%s: %v", name, id, err)
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) requesterAction(c *gin.Context, name string, fn taskAction) {
	accountID, _ := getAccountAndRole(c)
	id := c.Param("id")
	log.Printf("[task][%s] call by requester=%s id=%s", name, accountID, id)

	task, err := fn(c.Request.Context(), id, accountID)
	if err != nil {
		log.Printf("[task][%s][err] id=%s: %v", name, id, err)
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
