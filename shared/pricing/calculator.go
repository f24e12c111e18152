// Package pricing computes per-night prices and availability for a stay.
package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/conflict"
	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// Store is the read side of the ledger the calculator needs
type Store interface {
	// GetRoom returns apperr.NotFoundError when the room does not belong to the tenant.
	GetRoom(ctx context.Context, tenantID, roomID uuid.UUID) (*models.Room, error)
	SeasonalRates(ctx context.Context, roomID uuid.UUID, from, to time.Time) ([]models.SeasonalRate, error)
	// HoldingBookings returns pending/confirmed bookings on the room overlapping [from, to).
	HoldingBookings(ctx context.Context, tenantID, roomID uuid.UUID, from, to time.Time) ([]models.Booking, error)
}

// NightPrice is one line of the nightly breakdown
type NightPrice struct {
	Date     string          `json:"date"`
	Price    decimal.Decimal `json:"price"`
	RateName *string         `json:"rate_name"`
}

// Quote is the priced stay
type Quote struct {
	RoomID   uuid.UUID       `json:"room_id"`
	CheckIn  string          `json:"check_in"`
	CheckOut string          `json:"check_out"`
	Nights   []NightPrice    `json:"nights"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Currency string          `json:"currency"`
}

// NightsCount returns the number of priced nights
func (q *Quote) NightsCount() int {
	return len(q.Nights)
}

// Availability is a Quote plus inventory and stay-rule compliance
type Availability struct {
	Quote
	NightsCount    int  `json:"nights_count"`
	TotalUnits     int  `json:"total_units"`
	AvailableUnits int  `json:"available_units"`
	MeetsMinStay   bool `json:"meets_min_stay"`
	MeetsMaxStay   bool `json:"meets_max_stay"`
	Available      bool `json:"available"`
}

// Calculator prices stays and checks availability against the ledger
type Calculator struct {
	store Store
	log   logrus.FieldLogger
}

// NewCalculator creates a calculator over the given store
func NewCalculator(store Store, log logrus.FieldLogger) *Calculator {
	return &Calculator{store: store, log: log}
}

const (
	// MaxStayNights bounds a quoted or checked stay
	MaxStayNights = 366
	// MaxBlockedRangeDays bounds a blocked-dates window
	MaxBlockedRangeDays = 731
)

func validateStay(checkIn, checkOut time.Time) error {
	if !checkIn.Before(checkOut) {
		return apperr.Validation("check_out", "must be after check_in (%s)", utils.FormatDate(checkIn))
	}
	if checkOut.After(checkIn.AddDate(0, 0, MaxStayNights)) {
		return apperr.Validation("check_out", "stay may not exceed %d nights", MaxStayNights)
	}
	return nil
}

// Quote prices every night of [checkIn, checkOut)
func (c *Calculator) Quote(ctx context.Context, tenantID, roomID uuid.UUID, checkIn, checkOut time.Time) (*Quote, error) {
	checkIn, checkOut = utils.DateOnly(checkIn), utils.DateOnly(checkOut)
	if err := validateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	room, err := c.store.GetRoom(ctx, tenantID, roomID)
	if err != nil {
		return nil, err
	}
	return c.quoteRoom(ctx, room, checkIn, checkOut)
}

func (c *Calculator) quoteRoom(ctx context.Context, room *models.Room, checkIn, checkOut time.Time) (*Quote, error) {
	lastNight := checkOut.AddDate(0, 0, -1)
	rates, err := c.store.SeasonalRates(ctx, room.ID, checkIn, lastNight)
	if err != nil {
		return nil, err
	}
	return PriceStay(room, rates, checkIn, checkOut), nil
}

// PriceStay builds the nightly breakdown for a room from its seasonal rates
func PriceStay(room *models.Room, rates []models.SeasonalRate, checkIn, checkOut time.Time) *Quote {
	ordered := orderRates(rates)

	q := &Quote{
		RoomID:   room.ID,
		CheckIn:  utils.FormatDate(checkIn),
		CheckOut: utils.FormatDate(checkOut),
		Subtotal: decimal.Zero,
		Currency: room.Currency,
	}
	for _, night := range utils.Nights(checkIn, checkOut) {
		line := NightPrice{Date: utils.FormatDate(night), Price: room.BasePricePerNight}
		if rate := matchRate(ordered, night); rate != nil {
			name := rate.Name
			line.Price = rate.PricePerNight
			line.RateName = &name
		}
		q.Nights = append(q.Nights, line)
		q.Subtotal = q.Subtotal.Add(line.Price)
	}
	return q
}

// orderRates sorts rates into precedence order: priority desc, then the most
// recently created, then the smallest id.
func orderRates(rates []models.SeasonalRate) []models.SeasonalRate {
	ordered := make([]models.SeasonalRate, len(rates))
	copy(ordered, rates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return ordered
}

func matchRate(ordered []models.SeasonalRate, night time.Time) *models.SeasonalRate {
	for i := range ordered {
		if ordered[i].Covers(night) {
			return &ordered[i]
		}
	}
	return nil
}

// Check prices the stay and evaluates inventory and stay-length rules.
// guests <= 0 skips the capacity check.
func (c *Calculator) Check(ctx context.Context, tenantID, roomID uuid.UUID, checkIn, checkOut time.Time, guests int) (*Availability, error) {
	checkIn, checkOut = utils.DateOnly(checkIn), utils.DateOnly(checkOut)
	if err := validateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	room, err := c.store.GetRoom(ctx, tenantID, roomID)
	if err != nil {
		return nil, err
	}
	if guests > 0 && room.MaxGuests > 0 && guests > room.MaxGuests {
		return nil, apperr.Validation("guests", "%d guests exceeds room capacity of %d", guests, room.MaxGuests)
	}

	quote, err := c.quoteRoom(ctx, room, checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	bookings, err := c.store.HoldingBookings(ctx, tenantID, roomID, checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	a := &Availability{
		Quote:       *quote,
		NightsCount: quote.NightsCount(),
		TotalUnits:  room.Units(),
	}
	// negative when the room is overbooked
	a.AvailableUnits = room.Units() - conflict.CountOverlapping(checkIn, checkOut, bookings)
	a.MeetsMinStay = a.NightsCount >= room.MinStayNights
	a.MeetsMaxStay = room.MaxStayNights == nil || a.NightsCount <= *room.MaxStayNights
	a.Available = a.AvailableUnits > 0 && a.MeetsMinStay && a.MeetsMaxStay

	c.log.WithFields(logrus.Fields{
		"room_id":         roomID,
		"check_in":        a.CheckIn,
		"check_out":       a.CheckOut,
		"available_units": a.AvailableUnits,
	}).Debug("availability checked")

	return a, nil
}

// BlockedDates lists the dates in [from, to) that cannot take another booking
func (c *Calculator) BlockedDates(ctx context.Context, tenantID, roomID uuid.UUID, from, to time.Time) ([]string, error) {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	if !from.Before(to) {
		return nil, apperr.Validation("to", "must be after from (%s)", utils.FormatDate(from))
	}
	if to.After(from.AddDate(0, 0, MaxBlockedRangeDays)) {
		return nil, apperr.Validation("to", "range may not exceed %d days", MaxBlockedRangeDays)
	}

	room, err := c.store.GetRoom(ctx, tenantID, roomID)
	if err != nil {
		return nil, err
	}
	bookings, err := c.store.HoldingBookings(ctx, tenantID, roomID, from, to)
	if err != nil {
		return nil, err
	}
	return ExpandBlocked(room, bookings, from, to), nil
}

// ExpandBlocked applies the calendar blocking rule: single-unit rooms block
// every touched date, multi-unit rooms only when touching bookings reach total_units.
func ExpandBlocked(room *models.Room, bookings []models.Booking, from, to time.Time) []string {
	threshold := room.Units()
	if room.IsSingleUnit() {
		threshold = 1
	}

	blocked := []string{}
	for _, date := range utils.Nights(from, to) {
		n := 0
		for i := range bookings {
			if bookings[i].HoldsInventory() && bookings[i].Touches(date) {
				n++
			}
		}
		if n >= threshold {
			blocked = append(blocked, utils.FormatDate(date))
		}
	}
	return blocked
}
