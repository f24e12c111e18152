package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/ical"
	"github.com/Wollie333/vilo-sub009/shared/models"
)

func TestTwoFeedsReportingTheSameStayFlagOneConflict(t *testing.T) {
	h := newHarness()
	h.addMapping("Garden Suite (feed A)", "https://a.example/cal.ics", h.room)
	h.addMapping("Garden Suite (feed B)", "https://b.example/cal.ics", h.room)
	h.feeds.feeds["https://a.example/cal.ics"] = append(h.feeds.feeds["https://a.example/cal.ics"], rsv("a-1", "2025-01-10", "2025-01-12", "Alice"))
	h.feeds.feeds["https://b.example/cal.ics"] = append(h.feeds.feeds["https://b.example/cal.ics"], rsv("b-1", "2025-01-10", "2025-01-12", "Bob"))

	res, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.SyncStatusWarning {
		t.Fatalf("expected warning, got %s", res.Status)
	}
	if res.Created != 2 || len(res.Conflicts) != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	first := h.ledger.byExternalID("a-1")
	second := h.ledger.byExternalID("b-1")
	if first.Status != models.BookingStatusConfirmed {
		t.Fatalf("first ingested booking should be confirmed, got %s", first.Status)
	}
	if second.Status != models.BookingStatusPending {
		t.Fatalf("conflicting booking should be pending, got %s", second.Status)
	}
	if !strings.Contains(second.Notes, ConflictMarker) || !strings.Contains(second.Notes, first.ID.String()) {
		t.Fatalf("conflict annotation missing: %q", second.Notes)
	}

	stored := h.store.log(res.LogID)
	if stored.Status != models.SyncStatusWarning || stored.CompletedAt == nil {
		t.Fatalf("unexpected stored log %+v", stored)
	}
	var conflicts []string
	if err := json.Unmarshal(stored.Conflicts, &conflicts); err != nil || len(conflicts) != 1 {
		t.Fatalf("expected one stored conflict, got %s (%v)", stored.Conflicts, err)
	}

	integ := h.store.integrations[h.integ.ID]
	if !integ.IsConnected || integ.LastSyncedAt == nil {
		t.Fatalf("integration state not updated: %+v", integ)
	}
	if integ.LastError == nil || *integ.LastError != res.Conflicts[0] {
		t.Fatalf("last_error should carry the first conflict, got %v", integ.LastError)
	}

	sent := h.notifier.last()
	if sent.Platform != "airbnb" || len(sent.Rooms) != 2 || sent.Rooms[0] != "Garden Suite (feed A)" || sent.Rooms[1] != "Garden Suite (feed B)" {
		t.Fatalf("summary must name platform and rooms, got %q %v", sent.Platform, sent.Rooms)
	}
}

func TestReingestingAnUnchangedFeedOnlyUpdates(t *testing.T) {
	h := newHarness()
	h.addMapping("Loft", "https://a.example/loft.ics", h.room)
	h.feeds.feeds["https://a.example/loft.ics"] = append(h.feeds.feeds["https://a.example/loft.ics"],
		rsv("x-1", "2025-02-01", "2025-02-03", "Carol"),
		rsv("x-2", "2025-02-05", "2025-02-07", "Dan"),
	)

	first, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 2 {
		t.Fatalf("expected 2 created, got %d", first.Created)
	}

	second, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Updated != 2 || second.Status != models.SyncStatusSuccess {
		t.Fatalf("rerun must only update: %+v", second)
	}
	if len(h.ledger.bookings) != 2 {
		t.Fatalf("expected 2 bookings in ledger, got %d", len(h.ledger.bookings))
	}
}

func TestOneUnreachableFeedOfThreeIsPartial(t *testing.T) {
	h := newHarness()
	roomB, roomC := uuid.New(), uuid.New()
	h.addMapping("Room A", "https://a.example/a.ics", h.room)
	h.addMapping("Room B", "https://down.example/b.ics", roomB)
	h.addMapping("Room C", "https://c.example/c.ics", roomC)
	h.feeds.feeds["https://a.example/a.ics"] = append(h.feeds.feeds["https://a.example/a.ics"], rsv("a", "2025-03-01", "2025-03-04", "Eve"))
	h.feeds.feeds["https://c.example/c.ics"] = append(h.feeds.feeds["https://c.example/c.ics"], rsv("c", "2025-03-02", "2025-03-05", "Finn"))
	h.feeds.fails["https://down.example/b.ics"] = errors.New("connection refused")

	res, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.SyncStatusPartial {
		t.Fatalf("expected partial, got %s", res.Status)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Room B") {
		t.Fatalf("expected one error for Room B, got %v", res.Errors)
	}
	if res.Created != 2 {
		t.Fatalf("other mappings must still be ingested, created=%d", res.Created)
	}
	if res.HardFailure || h.notifier.last().HardFailure {
		t.Fatal("a partial success is not a hard failure")
	}
	if !h.store.integrations[h.integ.ID].IsConnected {
		t.Fatal("integration with working feeds stays connected")
	}
	if msg := h.store.log(res.LogID).ErrorMessage; msg == nil || *msg != res.Errors[0] {
		t.Fatalf("error_message should hold the first error, got %v", msg)
	}
}

func TestTotalFailureNotifiesAsHardFailure(t *testing.T) {
	h := newHarness()
	h.addMapping("Cabin", "https://down.example/cabin.ics", h.room)
	h.feeds.fails["https://down.example/cabin.ics"] = errors.New("timeout")

	res, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.SyncStatusPartial {
		t.Fatalf("stored status stays partial, got %s", res.Status)
	}
	summary := h.notifier.last()
	if !summary.HardFailure || summary.EventType() != "sync_failed" {
		t.Fatalf("notification must report a hard failure: %+v", summary)
	}
	if h.store.integrations[h.integ.ID].IsConnected {
		t.Fatal("no feed worked, integration must be disconnected")
	}
}

func TestMappingsWithoutFeedAreSkipped(t *testing.T) {
	h := newHarness()
	h.addMapping("Unlinked", "", h.room)

	res, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Status != models.SyncStatusSuccess || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.feeds.calls != 0 {
		t.Fatal("no fetch should happen for a mapping without a feed")
	}
}

func TestRunRefusedWhileLeaseIsHeld(t *testing.T) {
	h := newHarness()
	h.addMapping("Loft", "https://a.example/loft.ics", h.room)

	release, err := h.locker.Acquire(context.Background(), h.integ.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.run()
	if !errors.Is(err, apperr.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	if len(h.store.logs) != 0 {
		t.Fatal("a refused run must not create a sync log")
	}

	release()
	if _, err := h.run(); err != nil {
		t.Fatalf("run should proceed after release: %v", err)
	}
}

func TestMappingLoadFailureMarksRunFailed(t *testing.T) {
	h := newHarness()
	h.store.mappingsErr = errors.New("db unavailable")

	res, err := h.run()
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil || res.Status != models.SyncStatusFailed {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if h.store.log(res.LogID).Status != models.SyncStatusFailed {
		t.Fatal("stored log must be failed")
	}
	if !h.notifier.last().HardFailure {
		t.Fatal("failed run is a hard failure")
	}
}

func TestPersistenceFailureIsRecordedAndRunContinues(t *testing.T) {
	h := newHarness()
	h.addMapping("Loft", "https://a.example/loft.ics", h.room)
	h.feeds.feeds["https://a.example/loft.ics"] = append(h.feeds.feeds["https://a.example/loft.ics"],
		rsv("bad", "2025-04-01", "2025-04-02", "Gina"),
		rsv("good", "2025-04-03", "2025-04-05", "Hal"),
	)
	h.ledger.failWrite["bad"] = true

	res, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Created != 1 || res.Status != models.SyncStatusPartial {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.ledger.byExternalID("good") == nil {
		t.Fatal("remaining records must still be written")
	}
}

func TestUnknownIntegrationAndInactive(t *testing.T) {
	h := newHarness()
	if _, err := h.orch.Run(context.Background(), h.tenant, uuid.New(), models.SyncTypeManual); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.orch.Run(context.Background(), uuid.New(), h.integ.ID, models.SyncTypeManual); !apperr.IsNotFound(err) {
		t.Fatalf("other tenants must not see the integration, got %v", err)
	}
	h.integ.IsActive = false
	if _, err := h.run(); !apperr.IsValidation(err) {
		t.Fatalf("inactive integration should be rejected, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	h := newHarness()
	report, err := h.orch.TestConnection(context.Background(), h.tenant, h.integ.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Connected || report.FeedsConfigured != 0 {
		t.Fatalf("no feeds configured counts as connected: %+v", report)
	}

	h.addMapping("Good", "https://a.example/good.ics", h.room)
	h.addMapping("Bad", "https://down.example/bad.ics", h.room)
	h.addMapping("None", "", h.room)
	h.feeds.fails["https://down.example/bad.ics"] = errors.New("404")

	report, err = h.orch.TestConnection(context.Background(), h.tenant, h.integ.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.FeedsConfigured != 2 || report.FeedsValid != 1 || report.FeedsInvalid != 1 || !report.Connected {
		t.Fatalf("one good feed keeps the integration connected: %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected one error, got %v", report.Errors)
	}

	h.feeds.fails["https://a.example/good.ics"] = errors.New("500")
	report, _ = h.orch.TestConnection(context.Background(), h.tenant, h.integ.ID)
	if report.Connected {
		t.Fatal("all feeds failing means disconnected")
	}
	if len(h.store.logs) != 0 || len(h.ledger.bookings) != 0 {
		t.Fatal("connection test must not persist anything")
	}
}

func TestRecentLogsNewestFirst(t *testing.T) {
	h := newHarness()
	h.addMapping("Loft", "https://a.example/loft.ics", h.room)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		res, err := h.run()
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, res.LogID)
	}

	logs, err := h.orch.RecentLogs(context.Background(), h.tenant, h.integ.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].StartedAt.Before(logs[1].StartedAt) {
		t.Fatal("logs must be newest first")
	}
	if _, err := h.orch.RecentLogs(context.Background(), uuid.New(), h.integ.ID, 5); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}
}

func TestFinalStatusPrecedence(t *testing.T) {
	cases := []struct {
		errs, conflicts int
		want            models.SyncStatus
	}{
		{0, 0, models.SyncStatusSuccess},
		{0, 3, models.SyncStatusWarning},
		{1, 0, models.SyncStatusPartial},
		{2, 5, models.SyncStatusPartial},
	}
	for _, c := range cases {
		if got := FinalStatus(c.errs, c.conflicts); got != c.want {
			t.Errorf("FinalStatus(%d,%d)=%s want %s", c.errs, c.conflicts, got, c.want)
		}
	}
}

func TestTruncatedFeedFailsOnlyItsMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cut.ics":
			_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:x\r\nDTSTART;VALUE=DATE:20250110\r\n"))
		default:
			_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:good-1\r\n" +
				"DTSTART;VALUE=DATE:20250110\r\nDTEND;VALUE=DATE:20250112\r\nSUMMARY:Gina\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"))
		}
	}))
	defer srv.Close()

	h := newHarness()
	h.orch = NewOrchestrator(h.store, h.ledger, ical.NewFetcher(5*time.Second), h.locker, h.notifier, quietLogger())
	h.addMapping("Cottage", srv.URL+"/cut.ics", uuid.New())
	h.addMapping("Barn", srv.URL+"/good.ics", h.room)

	res, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.SyncStatusPartial {
		t.Fatalf("expected partial, got %s", res.Status)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Cottage") {
		t.Fatalf("expected one error for the cut feed, got %v", res.Errors)
	}
	if res.Created != 1 || h.ledger.byExternalID("good-1") == nil {
		t.Fatalf("healthy feed must still be ingested: %+v", res)
	}
	if stored := h.store.log(res.LogID); stored.Status != models.SyncStatusPartial || stored.CompletedAt == nil {
		t.Fatalf("sync log must be closed, got %+v", stored)
	}
}
