package channelsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/ical"
	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/notify"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type memLedger struct {
	mu        sync.Mutex
	bookings  []*models.Booking
	failWrite map[string]bool // external ids whose writes fail
}

func (l *memLedger) FindByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.bookings {
		if b.TenantID == tenantID && b.ExternalIDValue() == externalID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *memLedger) ActiveBookingsForRoom(_ context.Context, tenantID, roomID uuid.UUID) ([]models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Booking
	for _, b := range l.bookings {
		if b.TenantID == tenantID && b.RoomID == roomID && !b.IsCancelled() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (l *memLedger) CreateBooking(_ context.Context, b *models.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite[b.ExternalIDValue()] {
		return apperr.Persistence("create booking "+b.ExternalIDValue(), errors.New("disk full"))
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	cp := *b
	l.bookings = append(l.bookings, &cp)
	return nil
}

func (l *memLedger) UpdateBooking(_ context.Context, b *models.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite[b.ExternalIDValue()] {
		return apperr.Persistence("update booking "+b.ExternalIDValue(), errors.New("disk full"))
	}
	for i, existing := range l.bookings {
		if existing.ID == b.ID {
			cp := *b
			l.bookings[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("booking %s not found", b.ID)
}

func (l *memLedger) byExternalID(id string) *models.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.bookings {
		if b.ExternalIDValue() == id {
			return b
		}
	}
	return nil
}

type memStore struct {
	mu           sync.Mutex
	integrations map[uuid.UUID]*models.Integration
	mappings     map[uuid.UUID][]models.RoomMapping
	logs         []*models.SyncLog
	mappingsErr  error
}

func newMemStore() *memStore {
	return &memStore{
		integrations: map[uuid.UUID]*models.Integration{},
		mappings:     map[uuid.UUID][]models.RoomMapping{},
	}
}

func (s *memStore) GetIntegration(_ context.Context, tenantID, id uuid.UUID) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integ, ok := s.integrations[id]
	if !ok || integ.TenantID != tenantID {
		return nil, apperr.NotFound("integration", id.String())
	}
	cp := *integ
	return &cp, nil
}

func (s *memStore) Mappings(_ context.Context, id uuid.UUID) ([]models.RoomMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mappingsErr != nil {
		return nil, s.mappingsErr
	}
	return append([]models.RoomMapping(nil), s.mappings[id]...), nil
}

func (s *memStore) CreateSyncLog(_ context.Context, log *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *log
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *memStore) SaveSyncLog(_ context.Context, log *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.logs {
		if l.ID == log.ID {
			if l.Status.IsTerminal() {
				return fmt.Errorf("sync log %s already terminal", log.ID)
			}
			cp := *log
			s.logs[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("sync log %s not found", log.ID)
}

func (s *memStore) SaveSyncState(_ context.Context, integ *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.integrations[integ.ID]
	stored.LastSyncedAt = integ.LastSyncedAt
	stored.IsConnected = integ.IsConnected
	stored.LastError = integ.LastError
	return nil
}

func (s *memStore) RecentLogs(_ context.Context, id uuid.UUID, limit int) ([]models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SyncLog
	for _, l := range s.logs {
		if l.IntegrationID == id {
			out = append(out, *l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) DueIntegrations(_ context.Context, now time.Time) ([]models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Integration
	for _, integ := range s.integrations {
		if integ.DueAt(now) {
			out = append(out, *integ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *memStore) log(id uuid.UUID) *models.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			return l
		}
	}
	return nil
}

type fakeFeeds struct {
	mu    sync.Mutex
	feeds map[string][]ical.Reservation
	fails map[string]error
	calls int
}

func (f *fakeFeeds) FetchAndParse(_ context.Context, url string) ([]ical.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.fails[url]; ok {
		return nil, apperr.FeedError(url, err)
	}
	return append([]ical.Reservation(nil), f.feeds[url]...), nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []notify.SyncSummary
}

func (n *recordingNotifier) SyncCompleted(_ context.Context, s notify.SyncSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func (n *recordingNotifier) last() notify.SyncSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.summaries[len(n.summaries)-1]
}

func rsv(id, in, out, guest string) ical.Reservation {
	return ical.Reservation{ExternalID: id, GuestName: guest, CheckIn: day(in), CheckOut: day(out)}
}

type harness struct {
	tenant   uuid.UUID
	room     uuid.UUID
	integ    *models.Integration
	ledger   *memLedger
	store    *memStore
	feeds    *fakeFeeds
	locker   *LocalLocker
	notifier *recordingNotifier
	orch     *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		tenant:   uuid.New(),
		room:     uuid.New(),
		ledger:   &memLedger{failWrite: map[string]bool{}},
		store:    newMemStore(),
		feeds:    &fakeFeeds{feeds: map[string][]ical.Reservation{}, fails: map[string]error{}},
		locker:   NewLocalLocker(),
		notifier: &recordingNotifier{},
	}
	h.integ = &models.Integration{ID: uuid.New(), TenantID: h.tenant, Platform: "airbnb", IsActive: true, SyncIntervalMinutes: 60}
	h.store.integrations[h.integ.ID] = h.integ
	h.orch = NewOrchestrator(h.store, h.ledger, h.feeds, h.locker, h.notifier, quietLogger())
	return h
}

// addMapping registers a feed; an empty url leaves the mapping without one
func (h *harness) addMapping(name, url string, room uuid.UUID) models.RoomMapping {
	m := models.RoomMapping{ID: uuid.New(), IntegrationID: h.integ.ID, RoomID: room, ExternalRoomID: name}
	if url != "" {
		u := url
		m.ICalURL = &u
	}
	roomName := name
	m.RoomName = &roomName
	h.store.mappings[h.integ.ID] = append(h.store.mappings[h.integ.ID], m)
	return m
}

func (h *harness) run() (*RunResult, error) {
	return h.orch.Run(context.Background(), h.tenant, h.integ.ID, models.SyncTypeManual)
}
