package channelsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/conflict"
	"github.com/Wollie333/vilo-sub009/shared/ical"
	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// ConflictMarker prefixes the annotation appended to the notes of a conflicting booking
const ConflictMarker = "[sync-conflict]"

// MappingResult is the outcome of reconciling one room mapping
type MappingResult struct {
	Created   int
	Updated   int
	Failed    int
	Skipped   int
	Errors    []string
	Conflicts []apperr.ConflictWarning
	// Fetched is true when the feed was downloaded and parsed
	Fetched bool
}

// Reconciler merges one feed into the ledger
type Reconciler struct {
	ledger Ledger
	feeds  FeedSource
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(ledger Ledger, feeds FeedSource, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{ledger: ledger, feeds: feeds, log: log, now: time.Now}
}

// ReconcileMapping ingests the feed of mapping m. Failures are reported in
// the result; they never abort the caller's run.
func (r *Reconciler) ReconcileMapping(ctx context.Context, integ *models.Integration, m models.RoomMapping) MappingResult {
	var res MappingResult
	log := r.log.WithFields(logrus.Fields{
		"integration_id": integ.ID,
		"mapping_id":     m.ID,
		"room_id":        m.RoomID,
	})

	url, ok := m.FeedURL()
	if !ok {
		res.Skipped++
		log.Debug("mapping has no feed configured, skipping")
		return res
	}

	reservations, err := r.feeds.FetchAndParse(ctx, url)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
		log.WithError(err).Warn("feed fetch failed")
		return res
	}
	res.Fetched = true

	for _, rsv := range reservations {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: run cancelled: %v", m.Label(), err))
			return res
		}
		r.ingest(ctx, integ, m, rsv, &res, log)
	}

	log.WithFields(logrus.Fields{
		"created":   res.Created,
		"updated":   res.Updated,
		"failed":    res.Failed,
		"conflicts": len(res.Conflicts),
	}).Info("mapping reconciled")
	return res
}

func (r *Reconciler) ingest(ctx context.Context, integ *models.Integration, m models.RoomMapping, rsv ical.Reservation, res *MappingResult, log logrus.FieldLogger) {
	now := r.now().UTC()

	existing, err := r.ledger.FindByExternalID(ctx, integ.TenantID, rsv.ExternalID)
	if err != nil {
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
		return
	}

	if existing != nil {
		if existing.RoomID != m.RoomID {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: event %s is already booked on room %s", m.Label(), rsv.ExternalID, existing.RoomID))
			return
		}
		reopened := existing.IsCancelled() && !rsv.Cancelled
		applyRefresh(existing, rsv, now)

		var warning *apperr.ConflictWarning
		if reopened {
			overlapping, err := r.overlapping(ctx, integ, m, rsv)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
				return
			}
			existing.Status = models.BookingStatusConfirmed
			existing.Notes = rsv.Notes
			if len(overlapping) > 0 {
				w := describeConflict(m, rsv, overlapping)
				warning = &w
				existing.Status = models.BookingStatusPending
				existing.Notes = appendNote(existing.Notes, conflictAnnotation(overlapping))
			}
		}

		if err := r.ledger.UpdateBooking(ctx, existing); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
			return
		}
		res.Updated++
		if reopened {
			log.WithFields(logrus.Fields{
				"external_id": rsv.ExternalID,
				"status":      existing.Status,
			}).Info("reopened booking listed again by the channel")
		}
		if warning != nil {
			res.Conflicts = append(res.Conflicts, *warning)
		}
		return
	}

	if rsv.Cancelled {
		log.WithField("external_id", rsv.ExternalID).Debug("ignoring cancelled event not in ledger")
		return
	}

	overlapping, err := r.overlapping(ctx, integ, m, rsv)
	if err != nil {
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
		return
	}

	booking := newSyncedBooking(integ, m, rsv, now)
	var warning *apperr.ConflictWarning
	if len(overlapping) > 0 {
		w := describeConflict(m, rsv, overlapping)
		warning = &w
		booking.Status = models.BookingStatusPending
		booking.Notes = appendNote(booking.Notes, conflictAnnotation(overlapping))
	}

	if err := r.ledger.CreateBooking(ctx, booking); err != nil {
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
		return
	}
	res.Created++
	if warning != nil {
		res.Conflicts = append(res.Conflicts, *warning)
		log.WithFields(logrus.Fields{
			"external_id": rsv.ExternalID,
			"overlaps":    len(overlapping),
			"nights":      rsv.Nights(),
		}).Warn("ingested reservation conflicts with existing bookings")
	}
}

// overlapping returns the room's live bookings that clash with rsv, ignoring bookings from the same feed
func (r *Reconciler) overlapping(ctx context.Context, integ *models.Integration, m models.RoomMapping, rsv ical.Reservation) ([]models.Booking, error) {
	active, err := r.ledger.ActiveBookingsForRoom(ctx, integ.TenantID, m.RoomID)
	if err != nil {
		return nil, err
	}
	others := active[:0:0]
	for _, b := range active {
		if !b.FromFeed(integ.Platform, m.ID) {
			others = append(others, b)
		}
	}
	candidate := conflict.Candidate{RoomID: m.RoomID, CheckIn: rsv.CheckIn, CheckOut: rsv.CheckOut, ExternalID: rsv.ExternalID}
	return conflict.Detect(candidate, others), nil
}

func newSyncedBooking(integ *models.Integration, m models.RoomMapping, rsv ical.Reservation, now time.Time) *models.Booking {
	externalID := rsv.ExternalID
	mappingID := m.ID
	return &models.Booking{
		TenantID:        integ.TenantID,
		RoomID:          m.RoomID,
		GuestName:       rsv.GuestName,
		CheckIn:         rsv.CheckIn,
		CheckOut:        rsv.CheckOut,
		Status:          models.BookingStatusConfirmed,
		PaymentStatus:   "external",
		Source:          integ.Platform,
		ExternalID:      &externalID,
		SourceMappingID: &mappingID,
		SyncedAt:        &now,
		TotalAmount:     decimal.Zero,
		Notes:           rsv.Notes,
	}
}

// applyRefresh overwrites the feed-owned fields; the feed is the source of truth.
// An existing conflict annotation survives so the pending booking stays explained.
// Reopening a cancelled booking is handled by the caller.
func applyRefresh(b *models.Booking, rsv ical.Reservation, now time.Time) {
	annotation := extractAnnotation(b.Notes)

	b.GuestName = rsv.GuestName
	b.CheckIn = rsv.CheckIn
	b.CheckOut = rsv.CheckOut
	b.Notes = appendNote(rsv.Notes, annotation)
	b.SyncedAt = &now
	if rsv.Cancelled {
		b.Status = models.BookingStatusCancelled
	}
}

func conflictAnnotation(overlapping []models.Booking) string {
	ids := make([]string, 0, len(overlapping))
	for _, b := range overlapping {
		ids = append(ids, b.ID.String())
	}
	return fmt.Sprintf("%s overlaps=%s", ConflictMarker, strings.Join(ids, ","))
}

func extractAnnotation(notes string) string {
	for _, line := range strings.Split(notes, "\n") {
		if strings.HasPrefix(line, ConflictMarker) {
			return line
		}
	}
	return ""
}

func appendNote(notes, line string) string {
	switch {
	case line == "":
		return notes
	case notes == "":
		return line
	default:
		return notes + "\n" + line
	}
}

func describeConflict(m models.RoomMapping, rsv ical.Reservation, overlapping []models.Booking) apperr.ConflictWarning {
	ids := make([]string, 0, len(overlapping))
	refs := make([]string, 0, len(overlapping))
	for _, b := range overlapping {
		ids = append(ids, b.ID.String())
		refs = append(refs, fmt.Sprintf("%s (%s, %s to %s)", b.GuestName, b.Source, utils.FormatDate(b.CheckIn), utils.FormatDate(b.CheckOut)))
	}
	return apperr.ConflictWarning{
		ExternalID: rsv.ExternalID,
		BookingIDs: ids,
		Description: fmt.Sprintf("%s: %s %s to %s overlaps %s",
			m.Label(), rsv.GuestName, utils.FormatDate(rsv.CheckIn), utils.FormatDate(rsv.CheckOut), strings.Join(refs, "; ")),
	}
}
