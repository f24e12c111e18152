package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/Wollie333/vilo-sub009/shared/config"
	"github.com/Wollie333/vilo-sub009/shared/ledger"
	"github.com/Wollie333/vilo-sub009/shared/middleware"
	"github.com/Wollie333/vilo-sub009/shared/pricing"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := config.NewLogger(cfg.App, "availability")

	// Redis backs the tenant lookup cache; the service works without it
	if err := utils.InitRedis(cfg.Redis.Options()); err != nil {
		logger.WithError(err).Warn("Redis unavailable, tenant cache disabled")
	}
	defer utils.CloseRedis()

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth, logger)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	repo := ledger.New(db)
	calc := pricing.NewCalculator(repo, logger)

	router := gin.Default()
	router.GET("/health", handleHealth(repo))

	rooms := router.Group("/rooms")
	rooms.Use(authMiddleware.RequireAuth())
	registerRoutes(rooms, calc)

	port := cfg.Services.AvailabilityPort
	logger.Infof("Availability service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start availability service:", err)
	}
}
