package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle state of a reservation
type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "pending"
	BookingStatusConfirmed     BookingStatus = "confirmed"
	BookingStatusCancelled     BookingStatus = "cancelled"
	BookingStatusPaymentFailed BookingStatus = "payment_failed"
	BookingStatusCartAbandoned BookingStatus = "cart_abandoned"
)

// SourceDirect labels bookings taken by the platform itself
const SourceDirect = "vilo"

// Booking is one reservation in the tenant-scoped ledger
type Booking struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID        uuid.UUID       `json:"tenant_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_bookings_tenant_external,where:external_id IS NOT NULL"`
	RoomID          uuid.UUID       `json:"room_id" gorm:"type:uuid;not null;index"`
	GuestName       string          `json:"guest_name"`
	GuestEmail      string          `json:"guest_email"`
	GuestPhone      string          `json:"guest_phone"`
	CheckIn         time.Time       `json:"check_in" gorm:"type:date;not null;index"`
	CheckOut        time.Time       `json:"check_out" gorm:"type:date;not null"`
	Status          BookingStatus   `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	PaymentStatus   string          `json:"payment_status" gorm:"type:varchar(20);default:'unpaid'"`
	Source          string          `json:"source" gorm:"type:varchar(50);not null;default:'vilo'"`
	ExternalID      *string         `json:"external_id,omitempty" gorm:"type:varchar(255);uniqueIndex:idx_bookings_tenant_external,where:external_id IS NOT NULL"`
	SourceMappingID *uuid.UUID      `json:"source_mapping_id,omitempty" gorm:"type:uuid;index"`
	SyncedAt        *time.Time      `json:"synced_at,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2);not null;default:0"`
	Currency        string          `json:"currency" gorm:"type:varchar(3)"`
	Notes           string          `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

// HoldsInventory reports whether the booking counts against availability
func (b *Booking) HoldsInventory() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsCancelled reports whether the booking has been cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// ExternalIDValue returns the external id or an empty string
func (b *Booking) ExternalIDValue() string {
	if b.ExternalID == nil {
		return ""
	}
	return *b.ExternalID
}

// FromFeed reports whether the booking was ingested from the given source and mapping
func (b *Booking) FromFeed(source string, mappingID uuid.UUID) bool {
	return b.Source == source && b.SourceMappingID != nil && *b.SourceMappingID == mappingID
}

// Touches reports whether the stay occupies the night of date
func (b *Booking) Touches(date time.Time) bool {
	return !date.Before(b.CheckIn) && date.Before(b.CheckOut)
}
