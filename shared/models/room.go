package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryMode describes whether a room is one physical unit or a pool of interchangeable units
type InventoryMode string

const (
	InventorySingleUnit InventoryMode = "single_unit"
	InventoryMultiUnit  InventoryMode = "multi_unit"
)

// Room is a bookable room type owned by a tenant
type Room struct {
	ID                uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID          uuid.UUID       `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name              string          `json:"name" gorm:"not null"`
	BasePricePerNight decimal.Decimal `json:"base_price_per_night" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(3);not null;default:'ZAR'"`
	TotalUnits        int             `json:"total_units" gorm:"not null;default:1;check:total_units >= 1"`
	InventoryMode     InventoryMode   `json:"inventory_mode" gorm:"type:varchar(20);not null;default:'single_unit'"`
	MinStayNights     int             `json:"min_stay_nights" gorm:"not null;default:1"`
	MaxStayNights     *int            `json:"max_stay_nights,omitempty"`
	MaxGuests         int             `json:"max_guests" gorm:"not null;default:2"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	SeasonalRates []SeasonalRate `json:"seasonal_rates,omitempty" gorm:"foreignKey:RoomID"`
}

// TableName returns the table name for the Room model
func (Room) TableName() string {
	return "rooms"
}

// IsSingleUnit reports whether every touched date blocks the whole room
func (r *Room) IsSingleUnit() bool {
	return r.InventoryMode == InventorySingleUnit || r.TotalUnits <= 1
}

// Units returns total_units clamped to the invariant minimum of one
func (r *Room) Units() int {
	if r.TotalUnits < 1 {
		return 1
	}
	return r.TotalUnits
}

// SeasonalRate overrides the base price for an inclusive date window
type SeasonalRate struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID        uuid.UUID       `json:"room_id" gorm:"type:uuid;not null;index"`
	Name          string          `json:"name" gorm:"not null"`
	StartDate     time.Time       `json:"start_date" gorm:"type:date;not null"`
	EndDate       time.Time       `json:"end_date" gorm:"type:date;not null"`
	PricePerNight decimal.Decimal `json:"price_per_night" gorm:"type:numeric(12,2);not null"`
	Priority      int             `json:"priority" gorm:"not null;default:0"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName returns the table name for the SeasonalRate model
func (SeasonalRate) TableName() string {
	return "room_seasonal_rates"
}

// Covers reports whether date falls inside the inclusive [StartDate, EndDate] window
func (s *SeasonalRate) Covers(date time.Time) bool {
	return !date.Before(s.StartDate) && !date.After(s.EndDate)
}
