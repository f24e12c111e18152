package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Wollie333/vilo-sub009/shared/channelsync"
	"github.com/Wollie333/vilo-sub009/shared/config"
	"github.com/Wollie333/vilo-sub009/shared/ical"
	"github.com/Wollie333/vilo-sub009/shared/ledger"
	"github.com/Wollie333/vilo-sub009/shared/metrics"
	"github.com/Wollie333/vilo-sub009/shared/notify"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := config.NewLogger(cfg.App, "sync-scheduler")
	metrics.Register()

	db, err := config.ConnectDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	repo := ledger.New(db)

	// Scheduled and manual runs must share the lease, so Redis is required here
	if err := utils.InitRedis(cfg.Redis.Options()); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	var notifier channelsync.Notifier = notify.LogNotifier{Log: logger}
	if cfg.Kafka.Broker != "" {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.Kafka.Broker, logger)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	orchestrator := channelsync.NewOrchestrator(
		repo, repo,
		ical.NewFetcher(cfg.Sync.FeedTimeout),
		utils.NewSyncLease(utils.RedisClient, cfg.Sync.LeaseTTL),
		notifier,
		logger,
	)
	scheduler := channelsync.NewScheduler(repo, orchestrator, cfg.Sync.SchedulerInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go scheduler.Start(ctx)

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "sync-scheduler",
		})
	})
	router.GET("/stats", handleStats(scheduler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := cfg.Services.SchedulerPort
	logger.Infof("Sync scheduler starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start sync scheduler:", err)
	}
}
