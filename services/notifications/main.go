package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/Wollie333/vilo-sub009/shared/config"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := config.NewLogger(cfg.App, "notifications")

	if cfg.Kafka.Broker == "" {
		log.Fatal("KAFKA_BROKER must be set")
	}

	webhookClient := NewWebhookClient(cfg.Notifications.WebhookURL)
	if !webhookClient.Enabled() {
		logger.Warn("NOTIFICATION_WEBHOOK_URL not set, summaries will fail delivery")
	}

	kafkaConsumer := NewKafkaConsumer(cfg.Kafka.Broker, logger)
	defer kafkaConsumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go kafkaConsumer.ConsumeSummaries(ctx, webhookClient)

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Notifications service is healthy", nil)
	})
	router.GET("/notifications/status", handleGetNotificationStatus(webhookClient))

	port := cfg.Services.NotificationsPort
	logger.Infof("Notifications service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start notifications service:", err)
	}
}
