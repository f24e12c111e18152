package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/Wollie333/vilo-sub009/shared/config"
	"github.com/Wollie333/vilo-sub009/shared/middleware"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := config.NewLogger(cfg.App, "gateway")

	// Initialize Redis for caching
	if err := utils.InitRedis(cfg.Redis.Options()); err != nil {
		logger.Warnf("Failed to connect to Redis, caching disabled: %v", err)
	}
	defer utils.CloseRedis()

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth, logger)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	serviceClients := &ServiceClients{
		AvailabilityService: NewServiceClient(cfg.Services.AvailabilityURL),
		ChannelSyncService:  NewServiceClient(cfg.Services.ChannelSyncURL),
	}

	router := gin.Default()
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})
	router.GET("/services/status", func(c *gin.Context) {
		utils.OKResponse(c, "Service status retrieved", serviceClients.GetServiceStatus())
	})

	registerRoutes(router, authMiddleware.RequireAuth(), serviceClients)

	port := cfg.Services.GatewayPort
	logger.Infof("API Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}

func registerRoutes(router *gin.Engine, auth gin.HandlerFunc, clients *ServiceClients) {
	// Pricing and availability
	rooms := router.Group("/rooms")
	rooms.Use(auth)
	{
		rooms.GET("/:room_id/quote", clients.AvailabilityService.ProxyRequest)
		rooms.GET("/:room_id/availability", clients.AvailabilityService.ProxyRequest)
		rooms.GET("/:room_id/blocked-dates", clients.AvailabilityService.ProxyRequest)
	}

	// Channel integrations and sync
	integrations := router.Group("/integrations")
	integrations.Use(auth)
	{
		integrations.POST("", clients.ChannelSyncService.ProxyRequest)
		integrations.POST("/:id/mappings", clients.ChannelSyncService.ProxyRequest)
		integrations.GET("/:id/mappings", clients.ChannelSyncService.ProxyRequest)
		integrations.POST("/:id/sync", clients.ChannelSyncService.ProxyRequest)
		integrations.GET("/:id/logs", clients.ChannelSyncService.ProxyRequest)
		integrations.POST("/:id/test-connection", clients.ChannelSyncService.ProxyRequest)
	}

	router.GET("/feeds/status", auth, clients.ChannelSyncService.ProxyRequest)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
