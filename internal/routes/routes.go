package routes

import (
	"github.com/gin-gonic/gin"

	"taskhive/internal/authz"
	"taskhive/internal/handlers"
	"taskhive/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	taskHandler *handlers.TaskHandler,
	providerHandler *handlers.ProviderHandler,
	wsHandler *handlers.WSHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	// ---- protected
	r.Use(middleware.AuthMiddleware())

	r.GET("/ws", wsHandler.Subscribe)

	// TASKS
	tasks := r.Group("/tasks")
	{
		tasks.POST("/", middleware.RequireRoles(authz.RoleRequester), taskHandler.Create)
		tasks.GET("/", taskHandler.GetAll)
		tasks.GET("/:id", taskHandler.GetByID)

		// provider-side transitions
		tasks.POST("/:id/accept", middleware.RequireRoles(authz.RoleProvider), taskHandler.Accept)
		tasks.POST("/:id/reject", middleware.RequireRoles(authz.RoleProvider), taskHandler.Reject)
		tasks.POST("/:id/start", middleware.RequireRoles(authz.RoleProvider), taskHandler.Start)
		tasks.POST("/:id/complete", middleware.RequireRoles(authz.RoleProvider), taskHandler.Complete)

		// requester-side transitions
		tasks.POST("/:id/approve", middleware.RequireRoles(authz.RoleRequester), taskHandler.Approve)
		tasks.POST("/:id/cancel", middleware.RequireRoles(authz.RoleRequester), taskHandler.Cancel)
	}

	// PROVIDER PRESENCE
	providers := r.Group("/providers", middleware.RequireRoles(authz.RoleProvider))
	{
		providers.POST("/online", providerHandler.Online)
		providers.POST("/heartbeat", providerHandler.Heartbeat)
		providers.POST("/position", providerHandler.Position)
		providers.POST("/offline", providerHandler.Offline)
		providers.GET("/me", providerHandler.Me)
	}

	return r
}
