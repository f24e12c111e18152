package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Wollie333/vilo-sub009/shared/channelsync"
	"github.com/Wollie333/vilo-sub009/shared/config"
	"github.com/Wollie333/vilo-sub009/shared/ical"
	"github.com/Wollie333/vilo-sub009/shared/ledger"
	"github.com/Wollie333/vilo-sub009/shared/metrics"
	"github.com/Wollie333/vilo-sub009/shared/middleware"
	"github.com/Wollie333/vilo-sub009/shared/notify"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := config.NewLogger(cfg.App, "channel-sync")
	metrics.Register()

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	repo := ledger.New(db)

	// The Redis lease serializes runs across replicas and the scheduler.
	// Without Redis only this process is serialized.
	var locker channelsync.Locker
	if err := utils.InitRedis(cfg.Redis.Options()); err != nil {
		logger.WithError(err).Warn("Redis unavailable, falling back to in-process sync lock")
		locker = channelsync.NewLocalLocker()
	} else {
		locker = utils.NewSyncLease(utils.RedisClient, cfg.Sync.LeaseTTL)
	}
	defer utils.CloseRedis()

	var notifier channelsync.Notifier = notify.LogNotifier{Log: logger}
	if cfg.Kafka.Broker != "" {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.Kafka.Broker, logger)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth, logger)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	fetcher := ical.NewFetcher(cfg.Sync.FeedTimeout)
	orchestrator := channelsync.NewOrchestrator(repo, repo, fetcher, locker, notifier, logger)

	router := gin.Default()
	router.GET("/health", handleHealth(repo))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	integrations := router.Group("/integrations")
	integrations.Use(authMiddleware.RequireAuth())
	registerRoutes(integrations, repo, orchestrator)

	feeds := router.Group("/feeds")
	feeds.Use(authMiddleware.RequireAuth())
	feeds.GET("/status", handleFeedStatus(fetcher.BreakerStates))

	port := cfg.Services.ChannelSyncPort
	logger.Infof("Channel sync service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start channel sync service:", err)
	}
}
