// Package channelsync pulls external channel calendars into the booking ledger.
//
// A run walks every room mapping of an integration in order, reconciles each
// feed against the ledger, flags overlapping stays instead of dropping them,
// and records the outcome on a SyncLog.
package channelsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/ical"
	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/notify"
)

// Ledger is the tenant-scoped booking store the reconciler writes to
type Ledger interface {
	// FindByExternalID returns nil, nil when no booking carries externalID.
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.Booking, error)
	ActiveBookingsForRoom(ctx context.Context, tenantID, roomID uuid.UUID) ([]models.Booking, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	UpdateBooking(ctx context.Context, b *models.Booking) error
}

// IntegrationStore persists integrations, their mappings and sync logs
type IntegrationStore interface {
	GetIntegration(ctx context.Context, tenantID, integrationID uuid.UUID) (*models.Integration, error)
	Mappings(ctx context.Context, integrationID uuid.UUID) ([]models.RoomMapping, error)
	CreateSyncLog(ctx context.Context, log *models.SyncLog) error
	SaveSyncLog(ctx context.Context, log *models.SyncLog) error
	SaveSyncState(ctx context.Context, integ *models.Integration) error
	RecentLogs(ctx context.Context, integrationID uuid.UUID, limit int) ([]models.SyncLog, error)
	DueIntegrations(ctx context.Context, now time.Time) ([]models.Integration, error)
}

// FeedSource fetches and parses one calendar feed
type FeedSource interface {
	FetchAndParse(ctx context.Context, url string) ([]ical.Reservation, error)
}

// Locker grants one run at a time per key. A held key yields apperr.ErrSyncInProgress.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Notifier is told about every completed run
type Notifier interface {
	SyncCompleted(ctx context.Context, summary notify.SyncSummary) error
}
