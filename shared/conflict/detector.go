// Package conflict finds reservations whose stays overlap.
package conflict

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/models"
)

// Candidate is a reservation about to enter the ledger
type Candidate struct {
	RoomID     uuid.UUID
	CheckIn    time.Time
	CheckOut   time.Time
	ExternalID string
}

// Overlaps applies the half-open test: [aIn, aOut) and [bIn, bOut) overlap iff aIn < bOut and bIn < aOut.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && bIn.Before(aOut)
}

// Detect returns the existing bookings that overlap the candidate.
// Bookings on other rooms, cancelled bookings and bookings sharing the
// candidate's external id are never reported. The result is ordered by
// (check_in, id) regardless of input order.
func Detect(c Candidate, existing []models.Booking) []models.Booking {
	var hits []models.Booking
	for _, b := range existing {
		if b.RoomID != c.RoomID || b.IsCancelled() {
			continue
		}
		if c.ExternalID != "" && b.ExternalIDValue() == c.ExternalID {
			continue
		}
		if Overlaps(c.CheckIn, c.CheckOut, b.CheckIn, b.CheckOut) {
			hits = append(hits, b)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CheckIn.Equal(hits[j].CheckIn) {
			return hits[i].CheckIn.Before(hits[j].CheckIn)
		}
		return hits[i].ID.String() < hits[j].ID.String()
	})
	return hits
}

// CountOverlapping counts bookings holding inventory that overlap [checkIn, checkOut).
func CountOverlapping(checkIn, checkOut time.Time, bookings []models.Booking) int {
	n := 0
	for i := range bookings {
		b := &bookings[i]
		if b.HoldsInventory() && Overlaps(checkIn, checkOut, b.CheckIn, b.CheckOut) {
			n++
		}
	}
	return n
}
