package main

import (
	"github.com/gin-gonic/gin"

	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// handleGetNotificationStatus reports webhook delivery status
func handleGetNotificationStatus(client *WebhookClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.OKResponse(c, "Notification status retrieved successfully", client.GetStatus())
	}
}
