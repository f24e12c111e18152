// Package ical downloads channel calendar feeds and turns their VEVENTs into reservations.
package ical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// DefaultGuestName is used when an event carries no SUMMARY
const DefaultGuestName = "Reserved"

// Reservation is one VEVENT normalized to calendar dates
type Reservation struct {
	ExternalID string    `json:"external_id"`
	GuestName  string    `json:"guest_name"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Notes      string    `json:"notes"`
	Cancelled  bool      `json:"cancelled"`
}

// Nights returns the length of the stay
func (r Reservation) Nights() int {
	return len(utils.Nights(r.CheckIn, r.CheckOut))
}

var (
	errEmptyFeed = errors.New("empty calendar feed")
	errTruncated = errors.New("calendar ends without END:VCALENDAR")
)

// ParseBytes parses an in-memory calendar
func ParseBytes(body []byte) ([]Reservation, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyFeed
	}
	return Parse(bytes.NewReader(body))
}

// Parse reads a VCALENDAR and returns its reservations ordered by (check_in, external_id).
// Events without a usable start, or whose end is not after their start, are dropped.
func Parse(r io.Reader) ([]Reservation, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	if !complete(body) {
		return nil, fmt.Errorf("malformed calendar: %w", errTruncated)
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("malformed calendar: %w", err)
	}

	out := []Reservation{}
	for _, ev := range cal.Events() {
		if ev == nil {
			return nil, errors.New("malformed calendar: unterminated VEVENT")
		}
		res, ok := fromEvent(ev)
		if ok {
			out = append(out, res)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CheckIn.Equal(out[j].CheckIn) {
			return out[i].CheckIn.Before(out[j].CheckIn)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

// complete reports whether the last non-blank line closes the calendar
func complete(body []byte) bool {
	body = bytes.TrimRight(body, " \t\r\n")
	if i := bytes.LastIndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return strings.EqualFold(strings.TrimSpace(string(body)), "END:VCALENDAR")
}

func fromEvent(ev *ics.VEvent) (Reservation, bool) {
	startProp := ev.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return Reservation{}, false
	}
	checkIn, err := parseDate(startProp.Value, startProp.ICalParameters)
	if err != nil {
		return Reservation{}, false
	}

	checkOut := checkIn.AddDate(0, 0, 1)
	endRaw := ""
	if endProp := ev.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		endRaw = endProp.Value
		if checkOut, err = parseDate(endProp.Value, endProp.ICalParameters); err != nil {
			return Reservation{}, false
		}
	}
	if !checkIn.Before(checkOut) {
		return Reservation{}, false
	}

	summary := unescape(propValue(ev, ics.ComponentPropertySummary))
	res := Reservation{
		ExternalID: strings.TrimSpace(ev.Id()),
		GuestName:  summary,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Notes:      unescape(propValue(ev, ics.ComponentPropertyDescription)),
		Cancelled:  strings.EqualFold(propValue(ev, ics.ComponentPropertyStatus), "CANCELLED"),
	}
	if res.GuestName == "" {
		res.GuestName = DefaultGuestName
	}
	if res.ExternalID == "" {
		res.ExternalID = syntheticUID(startProp.Value, endRaw, summary)
	}
	return res, true
}

func propValue(ev *ics.VEvent, p ics.ComponentProperty) string {
	prop := ev.GetProperty(p)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

// syntheticUID gives UID-less events a stable identity so re-ingesting them stays idempotent
func syntheticUID(start, end, summary string) string {
	sum := sha256.Sum256([]byte(start + "|" + end + "|" + summary))
	return "nouid-" + hex.EncodeToString(sum[:16])
}

var dateTimeLayouts = []string{"20060102T150405Z", "20060102T150405"}

// parseDate accepts DATE and DATE-TIME values (UTC, floating or TZID) and
// reduces them to the calendar date they fall on.
func parseDate(raw string, params map[string][]string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 8 {
		t, err := time.Parse("20060102", raw)
		if err != nil {
			return time.Time{}, err
		}
		return utils.DateOnly(t), nil
	}

	loc := time.UTC
	if tz := firstParam(params, "TZID"); tz != "" && !strings.HasSuffix(raw, "Z") {
		if l, err := time.LoadLocation(strings.Trim(tz, `"`)); err == nil {
			loc = l
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date value %q", raw)
}

func firstParam(params map[string][]string, key string) string {
	for k, v := range params {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescape(s string) string {
	return textUnescaper.Replace(s)
}
