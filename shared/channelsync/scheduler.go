package channelsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/metrics"
	"github.com/Wollie333/vilo-sub009/shared/models"
)

// Runner starts a sync run; *Orchestrator implements it
type Runner interface {
	Run(ctx context.Context, tenantID, integrationID uuid.UUID, syncType models.SyncType) (*RunResult, error)
}

// DueSource lists integrations whose auto-sync interval has elapsed
type DueSource interface {
	DueIntegrations(ctx context.Context, now time.Time) ([]models.Integration, error)
}

// SchedulerStats counts scheduler activity since start
type SchedulerStats struct {
	Ticks     int64     `json:"ticks"`
	Runs      int64     `json:"runs"`
	Skipped   int64     `json:"skipped"`
	Failures  int64     `json:"failures"`
	LastTick  time.Time `json:"last_tick"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler periodically runs every due integration
type Scheduler struct {
	due      DueSource
	runner   Runner
	interval time.Duration
	log      logrus.FieldLogger

	mu    sync.Mutex
	stats SchedulerStats
}

// NewScheduler creates a scheduler checking for due integrations every interval
func NewScheduler(due DueSource, runner Runner, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{due: due, runner: runner, interval: interval, log: log.WithField("component", "sync_scheduler")}
}

// Tick runs every integration due at now, one after another. Integrations
// already syncing are skipped and picked up again on a later tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	metrics.IncSchedulerTick()
	s.record(func(st *SchedulerStats) {
		st.Ticks++
		st.LastTick = now
	})

	due, err := s.due.DueIntegrations(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("failed to load due integrations")
		s.record(func(st *SchedulerStats) { st.LastError = err.Error() })
		return
	}
	if len(due) == 0 {
		s.log.Debug("no integrations due")
		return
	}

	s.log.Infof("running %d due integrations", len(due))
	for _, integ := range due {
		if ctx.Err() != nil {
			return
		}
		log := s.log.WithField("integration_id", integ.ID)

		result, err := s.runner.Run(ctx, integ.TenantID, integ.ID, models.SyncTypeScheduled)
		switch {
		case IsBusy(err):
			log.Info("integration already syncing, skipping")
			s.record(func(st *SchedulerStats) { st.Skipped++ })
		case err != nil:
			log.WithError(err).Error("scheduled sync failed")
			s.record(func(st *SchedulerStats) {
				st.Failures++
				st.LastError = err.Error()
			})
		default:
			log.WithField("status", result.Status).Debug("scheduled sync done")
			s.record(func(st *SchedulerStats) { st.Runs++ })
		}
	}
}

// Start ticks until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Infof("scheduler started, interval %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Stats returns a snapshot of the counters
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Interval returns the tick period
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) record(fn func(*SchedulerStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
