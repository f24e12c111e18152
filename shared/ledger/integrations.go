package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/models"
)

var openSyncStatuses = []models.SyncStatus{models.SyncStatusPending, models.SyncStatusInProgress}

// CreateIntegration inserts an integration built by models.NewIntegration
func (r *Repository) CreateIntegration(ctx context.Context, integ *models.Integration) error {
	if err := r.conn(ctx).Create(integ).Error; err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

// GetIntegration loads an integration owned by the tenant
func (r *Repository) GetIntegration(ctx context.Context, tenantID, integrationID uuid.UUID) (*models.Integration, error) {
	var integ models.Integration
	err := r.conn(ctx).Where("id = ? AND tenant_id = ?", integrationID, tenantID).First(&integ).Error
	if err != nil {
		return nil, notFound(err, "integration", integrationID.String())
	}
	return &integ, nil
}

// CreateMapping links a tenant room to the integration
func (r *Repository) CreateMapping(ctx context.Context, tenantID uuid.UUID, m *models.RoomMapping) error {
	if _, err := r.GetRoom(ctx, tenantID, m.RoomID); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := r.conn(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create room mapping: %w", err)
	}
	return nil
}

// Mappings returns the room mappings of an integration with their room names filled
func (r *Repository) Mappings(ctx context.Context, integrationID uuid.UUID) ([]models.RoomMapping, error) {
	var mappings []models.RoomMapping
	err := r.conn(ctx).
		Where("integration_id = ?", integrationID).
		Order("created_at ASC, id ASC").
		Find(&mappings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load room mappings: %w", err)
	}
	if len(mappings) == 0 {
		return mappings, nil
	}

	roomIDs := make([]uuid.UUID, 0, len(mappings))
	for _, m := range mappings {
		roomIDs = append(roomIDs, m.RoomID)
	}
	var rooms []models.Room
	if err := r.conn(ctx).Select("id", "name").Where("id IN ?", roomIDs).Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to load mapped rooms: %w", err)
	}
	names := make(map[uuid.UUID]string, len(rooms))
	for _, room := range rooms {
		names[room.ID] = room.Name
	}
	for i := range mappings {
		if name, ok := names[mappings[i].RoomID]; ok {
			mappings[i].RoomName = &name
		}
	}
	return mappings, nil
}

// CreateSyncLog inserts a new pending run
func (r *Repository) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if err := r.conn(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// SaveSyncLog persists status and counters. Rows that already reached a
// terminal status are never rewritten.
func (r *Repository) SaveSyncLog(ctx context.Context, log *models.SyncLog) error {
	res := r.conn(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status IN ?", log.ID, openSyncStatuses).
		Updates(map[string]interface{}{
			"status":          log.Status,
			"completed_at":    log.CompletedAt,
			"records_created": log.RecordsCreated,
			"records_updated": log.RecordsUpdated,
			"records_failed":  log.RecordsFailed,
			"records_skipped": log.RecordsSkipped,
			"error_message":   log.ErrorMessage,
			"errors":          log.Errors,
			"conflicts":       log.Conflicts,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save sync log %s: %w", log.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sync log %s is missing or already terminal", log.ID)
	}
	return nil
}

// SaveSyncState records the outcome of a run on the integration
func (r *Repository) SaveSyncState(ctx context.Context, integ *models.Integration) error {
	err := r.conn(ctx).Model(&models.Integration{}).
		Where("id = ?", integ.ID).
		Updates(map[string]interface{}{
			"last_synced_at": integ.LastSyncedAt,
			"is_connected":   integ.IsConnected,
			"last_error":     integ.LastError,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update integration %s: %w", integ.ID, err)
	}
	return nil
}

// RecentLogs returns up to limit runs of an integration, newest first
func (r *Repository) RecentLogs(ctx context.Context, integrationID uuid.UUID, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	err := r.conn(ctx).
		Where("integration_id = ?", integrationID).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load sync logs: %w", err)
	}
	return logs, nil
}

// DueIntegrations returns active auto-sync integrations whose interval has elapsed at now
func (r *Repository) DueIntegrations(ctx context.Context, now time.Time) ([]models.Integration, error) {
	var candidates []models.Integration
	err := r.conn(ctx).
		Where("is_active = ? AND auto_sync_enabled = ?", true, true).
		Order("last_synced_at ASC NULLS FIRST, id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load integrations: %w", err)
	}

	due := candidates[:0]
	for _, integ := range candidates {
		if integ.DueAt(now) {
			due = append(due, integ)
		}
	}
	return due, nil
}
