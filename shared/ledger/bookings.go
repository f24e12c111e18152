package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/models"
)

var holdingStatuses = []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}

func holdingBookingsQuery(db *gorm.DB, tenantID, roomID uuid.UUID, from, to time.Time) *gorm.DB {
	return db.Model(&models.Booking{}).
		Where("tenant_id = ? AND room_id = ?", tenantID, roomID).
		Where("status IN ?", holdingStatuses).
		Where("check_in < ? AND check_out > ?", to, from).
		Order("check_in ASC, id ASC")
}

func activeBookingsQuery(db *gorm.DB, tenantID, roomID uuid.UUID) *gorm.DB {
	return db.Model(&models.Booking{}).
		Where("tenant_id = ? AND room_id = ?", tenantID, roomID).
		Where("status <> ?", models.BookingStatusCancelled).
		Order("check_in ASC, id ASC")
}

// FindByExternalID returns the tenant's booking carrying externalID, or nil when there is none
func (r *Repository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.conn(ctx).Where("tenant_id = ? AND external_id = ?", tenantID, externalID).First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up booking %s: %w", externalID, err)
	}
	return &booking, nil
}

// ActiveBookingsForRoom returns every non-cancelled booking of the room
func (r *Repository) ActiveBookingsForRoom(ctx context.Context, tenantID, roomID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := activeBookingsQuery(r.conn(ctx), tenantID, roomID).Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to load bookings for room %s: %w", roomID, err)
	}
	return bookings, nil
}

// CreateBooking inserts a new booking
func (r *Repository) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := r.conn(ctx).Create(b).Error; err != nil {
		return apperr.Persistence("create booking "+b.ExternalIDValue(), err)
	}
	return nil
}

// UpdateBooking writes the fields a feed is allowed to change
func (r *Repository) UpdateBooking(ctx context.Context, b *models.Booking) error {
	err := r.conn(ctx).Model(&models.Booking{}).
		Where("id = ? AND tenant_id = ?", b.ID, b.TenantID).
		Updates(map[string]interface{}{
			"guest_name": b.GuestName,
			"check_in":   b.CheckIn,
			"check_out":  b.CheckOut,
			"notes":      b.Notes,
			"status":     b.Status,
			"synced_at":  b.SyncedAt,
		}).Error
	if err != nil {
		return apperr.Persistence("update booking "+b.ExternalIDValue(), err)
	}
	return nil
}
