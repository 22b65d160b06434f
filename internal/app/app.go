package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"taskhive/internal/config"
	"taskhive/internal/handlers"
	"taskhive/internal/middleware"
	"taskhive/internal/realtime"
	"taskhive/internal/repositories"
	"taskhive/internal/routes"
	"taskhive/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
)

func Run() {
	cfg := config.LoadConfig()
	if cfg.JWT.Secret != "" {
		middleware.JWTKey = []byte(cfg.JWT.Secret)
	}

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to connect to postgres: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close postgres: %v", err)
		}
	}()

	// === Redis (geo index + provider presence) ===
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis: ", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("failed to close redis: %v", err)
		}
	}()

	// === Repos ===
	taskRepo := repositories.NewTaskRepository(db)
	providerRepo := repositories.NewProviderRepository(rdb, cfg.Dispatch.PresenceTTL())

	// === Realtime hub + services ===
	hub := realtime.NewHub()
	eventService := services.NewEventService(hub)
	taskService := services.NewTaskService(taskRepo, providerRepo, eventService, cfg.Dispatch.ArrivalRadiusM)
	matcherService := services.NewMatcherService(taskRepo, providerRepo, eventService,
		cfg.Dispatch.SearchRadiusM, cfg.Dispatch.GeoTimeout())
	reconciler := services.NewReconcilerService(taskRepo, providerRepo, matcherService, eventService,
		cfg.Dispatch.TickInterval(), cfg.Dispatch.AcceptTimeout(), cfg.Dispatch.SweepConcurrency)

	// === Handlers ===
	taskHandler := handlers.NewTaskHandler(taskService, matcherService)
	providerHandler := handlers.NewProviderHandler(providerRepo)
	wsHandler := handlers.NewWSHandler(hub)

	// === Background reconciliation ===
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reconciler.Start(ctx)

	// === Gin ===
	router := gin.Default()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	routes.SetupRoutes(router, taskHandler, providerHandler, wsHandler)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("server listening on %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("failed to start server: ", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
