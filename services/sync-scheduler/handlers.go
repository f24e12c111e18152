package main

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wollie333/vilo-sub009/shared/channelsync"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

type statsSource interface {
	Stats() channelsync.SchedulerStats
	Interval() time.Duration
}

// handleStats reports tick counters and the scheduler configuration
func handleStats(s statsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.OKResponse(c, "Scheduler statistics retrieved", gin.H{
			"scheduler_stats": s.Stats(),
			"config": gin.H{
				"interval": s.Interval().String(),
			},
		})
	}
}
