package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wollie333/vilo-sub009/shared/channelsync"
)

type fixedStats struct{}

func (fixedStats) Stats() channelsync.SchedulerStats {
	return channelsync.SchedulerStats{Ticks: 4, Runs: 3, Skipped: 1}
}

func (fixedStats) Interval() time.Duration { return 90 * time.Second }

func TestStatsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stats", handleStats(fixedStats{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected %d", w.Code)
	}

	var body struct {
		Data struct {
			SchedulerStats channelsync.SchedulerStats `json:"scheduler_stats"`
			Config         struct {
				Interval string `json:"interval"`
			} `json:"config"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.SchedulerStats.Runs != 3 || body.Data.SchedulerStats.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", body.Data.SchedulerStats)
	}
	if body.Data.Config.Interval != "1m30s" {
		t.Fatalf("unexpected interval %q", body.Data.Config.Interval)
	}
}
