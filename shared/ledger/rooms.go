package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/models"
)

// GetRoom loads a room owned by the tenant
func (r *Repository) GetRoom(ctx context.Context, tenantID, roomID uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := r.conn(ctx).Where("id = ? AND tenant_id = ?", roomID, tenantID).First(&room).Error; err != nil {
		return nil, notFound(err, "room", roomID.String())
	}
	return &room, nil
}

// SeasonalRates returns the rate windows of a room intersecting the inclusive range [from, to]
func (r *Repository) SeasonalRates(ctx context.Context, roomID uuid.UUID, from, to time.Time) ([]models.SeasonalRate, error) {
	var rates []models.SeasonalRate
	err := r.conn(ctx).
		Where("room_id = ? AND start_date <= ? AND end_date >= ?", roomID, to, from).
		Order("priority DESC, created_at DESC, id ASC").
		Find(&rates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load seasonal rates: %w", err)
	}
	return rates, nil
}

// HoldingBookings returns pending and confirmed bookings on the room overlapping [from, to)
func (r *Repository) HoldingBookings(ctx context.Context, tenantID, roomID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := holdingBookingsQuery(r.conn(ctx), tenantID, roomID, from, to).Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	return bookings, nil
}
