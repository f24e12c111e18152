package main

import (
	"context"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/channelsync"
	"github.com/Wollie333/vilo-sub009/shared/middleware"
	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// integrationAdmin registers integrations and their room mappings
type integrationAdmin interface {
	CreateIntegration(ctx context.Context, integ *models.Integration) error
	GetIntegration(ctx context.Context, tenantID, integrationID uuid.UUID) (*models.Integration, error)
	CreateMapping(ctx context.Context, tenantID uuid.UUID, m *models.RoomMapping) error
	Mappings(ctx context.Context, integrationID uuid.UUID) ([]models.RoomMapping, error)
}

// syncRunner runs and inspects syncs
type syncRunner interface {
	Run(ctx context.Context, tenantID, integrationID uuid.UUID, syncType models.SyncType) (*channelsync.RunResult, error)
	TestConnection(ctx context.Context, tenantID, integrationID uuid.UUID) (*channelsync.ConnectionReport, error)
	RecentLogs(ctx context.Context, tenantID, integrationID uuid.UUID, limit int) ([]models.SyncLog, error)
}

// CreateIntegrationRequest represents the create integration request
type CreateIntegrationRequest struct {
	Platform            string `json:"platform" binding:"required"`
	Credentials         string `json:"credentials"`
	AutoSyncEnabled     bool   `json:"auto_sync_enabled"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
}

// CreateMappingRequest represents the create room mapping request
type CreateMappingRequest struct {
	RoomID         uuid.UUID `json:"room_id" binding:"required"`
	ExternalRoomID string    `json:"external_room_id"`
	ICalURL        string    `json:"ical_url"`
}

// TriggerSyncRequest represents the manual sync request
type TriggerSyncRequest struct {
	SyncType models.SyncType `json:"sync_type"`
}

func registerRoutes(integrations *gin.RouterGroup, admin integrationAdmin, runner syncRunner) {
	integrations.POST("", handleCreateIntegration(admin))
	integrations.POST("/:id/mappings", handleCreateMapping(admin))
	integrations.GET("/:id/mappings", handleListMappings(admin))
	integrations.POST("/:id/sync", handleTriggerSync(runner))
	integrations.GET("/:id/logs", handleGetLogs(runner))
	integrations.POST("/:id/test-connection", handleTestConnection(runner))
}

// handleCreateIntegration registers a new channel connection for the tenant
func handleCreateIntegration(admin integrationAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := middleware.TenantID(c)
		if !ok {
			utils.UnauthorizedResponse(c, "Tenant information not found")
			return
		}

		var req CreateIntegrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.SyncIntervalMinutes < 0 {
			utils.BadRequestResponse(c, "sync_interval_minutes must not be negative")
			return
		}

		integ, err := models.NewIntegration(tenantID, req.Platform, req.Credentials)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		integ.AutoSyncEnabled = req.AutoSyncEnabled
		if req.SyncIntervalMinutes > 0 {
			integ.SyncIntervalMinutes = req.SyncIntervalMinutes
		}

		if err := admin.CreateIntegration(c.Request.Context(), integ); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Integration created successfully", integ)
	}
}

// handleCreateMapping links a room to an external listing and its iCal feed
func handleCreateMapping(admin integrationAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, integrationID, ok := scope(c)
		if !ok {
			return
		}

		var req CreateMappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.ICalURL != "" && !validFeedURL(req.ICalURL) {
			utils.BadRequestResponse(c, "ical_url must be an http(s) URL")
			return
		}

		integ, err := admin.GetIntegration(c.Request.Context(), tenantID, integrationID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		mapping := &models.RoomMapping{
			ID:             uuid.New(),
			IntegrationID:  integ.ID,
			RoomID:         req.RoomID,
			ExternalRoomID: req.ExternalRoomID,
		}
		if req.ICalURL != "" {
			mapping.ICalURL = &req.ICalURL
		}

		if err := admin.CreateMapping(c.Request.Context(), tenantID, mapping); err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Room mapping created successfully", mapping)
	}
}

// handleListMappings lists the room mappings of an integration
func handleListMappings(admin integrationAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, integrationID, ok := scope(c)
		if !ok {
			return
		}

		integ, err := admin.GetIntegration(c.Request.Context(), tenantID, integrationID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		mappings, err := admin.Mappings(c.Request.Context(), integ.ID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Room mappings retrieved successfully", mappings)
	}
}

// handleTriggerSync runs a sync now and returns its terminal counts
func handleTriggerSync(runner syncRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, integrationID, ok := scope(c)
		if !ok {
			return
		}

		req := TriggerSyncRequest{SyncType: models.SyncTypeManual}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				utils.BadRequestResponse(c, "Invalid request format")
				return
			}
		}
		switch req.SyncType {
		case "":
			req.SyncType = models.SyncTypeManual
		case models.SyncTypeManual, models.SyncTypeScheduled:
		default:
			utils.BadRequestResponse(c, "sync_type must be manual or scheduled")
			return
		}

		result, err := runner.Run(c.Request.Context(), tenantID, integrationID, req.SyncType)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Sync completed with status "+string(result.Status), result)
	}
}

// handleGetLogs lists recent sync runs, newest first
func handleGetLogs(runner syncRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, integrationID, ok := scope(c)
		if !ok {
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				utils.BadRequestResponse(c, "limit must be an integer")
				return
			}
			limit = n
		}

		logs, err := runner.RecentLogs(c.Request.Context(), tenantID, integrationID, limit)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Sync logs retrieved successfully", logs)
	}
}

// handleTestConnection validates every mapped feed without writing anything
func handleTestConnection(runner syncRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, integrationID, ok := scope(c)
		if !ok {
			return
		}

		report, err := runner.TestConnection(c.Request.Context(), tenantID, integrationID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Connection tested", report)
	}
}

// handleFeedStatus reports the circuit state of every feed host seen so far
func handleFeedStatus(states func() map[string]utils.CircuitState) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.OKResponse(c, "Feed host status retrieved", states())
	}
}

func scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Tenant information not found")
		return uuid.Nil, uuid.Nil, false
	}
	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid integration ID")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, integrationID, true
}

func validFeedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth reports healthy only while the database answers
func handleHealth(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			utils.ServiceUnavailableResponse(c, "Database unavailable")
			return
		}
		utils.OKResponse(c, "Channel sync service is healthy", nil)
	}
}
