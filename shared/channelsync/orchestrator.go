package channelsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/metrics"
	"github.com/Wollie333/vilo-sub009/shared/models"
	"github.com/Wollie333/vilo-sub009/shared/notify"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// RunResult summarizes a completed sync run
type RunResult struct {
	LogID       uuid.UUID         `json:"log_id"`
	Status      models.SyncStatus `json:"status"`
	Created     int               `json:"records_created"`
	Updated     int               `json:"records_updated"`
	Failed      int               `json:"records_failed"`
	Skipped     int               `json:"records_skipped"`
	Errors      []string          `json:"errors"`
	Conflicts   []string          `json:"conflicts"`
	Rooms       []string          `json:"rooms"`
	HardFailure bool              `json:"hard_failure"`
}

// ConnectionReport is the outcome of validating every mapped feed
type ConnectionReport struct {
	FeedsConfigured int      `json:"feeds_configured"`
	FeedsValid      int      `json:"feeds_valid"`
	FeedsInvalid    int      `json:"feeds_invalid"`
	Errors          []string `json:"errors"`
	Connected       bool     `json:"connected"`
}

// Orchestrator drives sync runs across all mappings of an integration
type Orchestrator struct {
	store      IntegrationStore
	reconciler *Reconciler
	feeds      FeedSource
	locker     Locker
	notifier   Notifier
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewOrchestrator wires the run dependencies
func NewOrchestrator(store IntegrationStore, ledger Ledger, feeds FeedSource, locker Locker, notifier Notifier, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		reconciler: NewReconciler(ledger, feeds, log),
		feeds:      feeds,
		locker:     locker,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// Run performs one inbound sync of the integration. It returns
// apperr.ErrSyncInProgress when another run holds the integration's lease.
// When mappings cannot be loaded the log is marked failed and both the
// result and the error are returned.
func (o *Orchestrator) Run(ctx context.Context, tenantID, integrationID uuid.UUID, syncType models.SyncType) (*RunResult, error) {
	integ, err := o.store.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return nil, err
	}
	if !integ.IsActive {
		return nil, apperr.Validation("integration", "integration %s is not active", integ.ID)
	}

	release, err := o.locker.Acquire(ctx, integ.ID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	started := o.now().UTC()
	log := o.log.WithFields(logrus.Fields{
		"integration_id": integ.ID,
		"tenant_id":      integ.TenantID,
		"sync_type":      syncType,
	})

	syncLog := &models.SyncLog{
		ID:            uuid.New(),
		IntegrationID: integ.ID,
		SyncType:      syncType,
		Direction:     models.SyncDirectionInbound,
		Status:        models.SyncStatusPending,
		StartedAt:     started,
	}
	if err := o.store.CreateSyncLog(ctx, syncLog); err != nil {
		return nil, err
	}
	log = log.WithField("log_id", syncLog.ID)

	if err := syncLog.Transition(models.SyncStatusInProgress); err != nil {
		return nil, err
	}
	if err := o.store.SaveSyncLog(ctx, syncLog); err != nil {
		log.WithError(err).Warn("failed to mark sync log in progress")
	}

	// terminal writes must land even if the caller goes away mid-run
	persist := context.WithoutCancel(ctx)

	mappings, err := o.store.Mappings(ctx, integ.ID)
	if err != nil {
		result := o.abort(persist, integ, syncLog, err, log)
		o.observe(syncType, result, started)
		return result, err
	}

	result := &RunResult{LogID: syncLog.ID, Errors: []string{}, Conflicts: []string{}, Rooms: []string{}}
	fetchedOK := 0
	for _, m := range mappings {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: run cancelled before reconciling", m.Label()))
			break
		}
		mr := o.reconciler.ReconcileMapping(ctx, integ, m)
		result.Rooms = append(result.Rooms, m.Label())
		result.Created += mr.Created
		result.Updated += mr.Updated
		result.Failed += mr.Failed
		result.Skipped += mr.Skipped
		result.Errors = append(result.Errors, mr.Errors...)
		for _, w := range mr.Conflicts {
			result.Conflicts = append(result.Conflicts, w.String())
		}
		if mr.Fetched {
			fetchedOK++
		}
	}
	result.Status = FinalStatus(len(result.Errors), len(result.Conflicts))
	result.HardFailure = len(result.Errors) > 0 && result.Created+result.Updated == 0

	o.complete(persist, syncLog, result, log)

	now := o.now().UTC()
	integ.LastSyncedAt = &now
	integ.IsConnected = fetchedOK > 0 || len(result.Errors) == 0
	integ.LastError = firstOf(result.Errors, result.Conflicts)
	if err := o.store.SaveSyncState(persist, integ); err != nil {
		log.WithError(err).Error("failed to update integration sync state")
	}

	o.notify(persist, integ, syncType, result, now, log)
	o.observe(syncType, result, started)

	log.WithFields(logrus.Fields{
		"status":    result.Status,
		"created":   result.Created,
		"updated":   result.Updated,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"errors":    len(result.Errors),
		"conflicts": len(result.Conflicts),
	}).Info("channel sync finished")

	return result, nil
}

// FinalStatus ranks the outcome: any error makes the run partial, else any conflict a warning.
func FinalStatus(errorCount, conflictCount int) models.SyncStatus {
	switch {
	case errorCount > 0:
		return models.SyncStatusPartial
	case conflictCount > 0:
		return models.SyncStatusWarning
	default:
		return models.SyncStatusSuccess
	}
}

func (o *Orchestrator) complete(ctx context.Context, syncLog *models.SyncLog, result *RunResult, log logrus.FieldLogger) {
	completed := o.now().UTC()
	syncLog.CompletedAt = &completed
	syncLog.RecordsCreated = result.Created
	syncLog.RecordsUpdated = result.Updated
	syncLog.RecordsFailed = result.Failed
	syncLog.RecordsSkipped = result.Skipped
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		syncLog.ErrorMessage = &msg
	}
	if err := syncLog.SetDetails(result.Errors, result.Conflicts); err != nil {
		log.WithError(err).Warn("failed to encode sync details")
	}
	if err := syncLog.Transition(result.Status); err != nil {
		log.WithError(err).Error("invalid terminal status")
		return
	}
	if err := o.store.SaveSyncLog(ctx, syncLog); err != nil {
		log.WithError(err).Error("failed to persist sync log")
	}
}

// abort marks a run failed before any mapping was reconciled
func (o *Orchestrator) abort(ctx context.Context, integ *models.Integration, syncLog *models.SyncLog, cause error, log logrus.FieldLogger) *RunResult {
	log.WithError(cause).Error("sync run failed before reconciling")

	msg := cause.Error()
	completed := o.now().UTC()
	syncLog.CompletedAt = &completed
	syncLog.ErrorMessage = &msg
	_ = syncLog.SetDetails([]string{msg}, nil)
	if err := syncLog.Transition(models.SyncStatusFailed); err == nil {
		if err := o.store.SaveSyncLog(ctx, syncLog); err != nil {
			log.WithError(err).Error("failed to persist failed sync log")
		}
	}

	integ.LastError = &msg
	if err := o.store.SaveSyncState(ctx, integ); err != nil {
		log.WithError(err).Error("failed to update integration sync state")
	}

	result := &RunResult{
		LogID:       syncLog.ID,
		Status:      models.SyncStatusFailed,
		Errors:      []string{msg},
		Conflicts:   []string{},
		Rooms:       []string{},
		HardFailure: true,
	}
	o.notify(ctx, integ, syncLog.SyncType, result, completed, log)
	return result
}

func (o *Orchestrator) notify(ctx context.Context, integ *models.Integration, syncType models.SyncType, result *RunResult, at time.Time, log logrus.FieldLogger) {
	if o.notifier == nil {
		return
	}
	summary := notify.SyncSummary{
		EventID:       uuid.New(),
		TenantID:      integ.TenantID,
		IntegrationID: integ.ID,
		Platform:      integ.Platform,
		LogID:         result.LogID,
		SyncType:      string(syncType),
		Status:        string(result.Status),
		Created:       result.Created,
		Updated:       result.Updated,
		Failed:        result.Failed,
		Skipped:       result.Skipped,
		Errors:        result.Errors,
		Conflicts:     result.Conflicts,
		Rooms:         result.Rooms,
		HardFailure:   result.HardFailure,
		CompletedAt:   at,
	}
	if err := o.notifier.SyncCompleted(ctx, summary); err != nil {
		log.WithError(err).Warn("failed to notify sync completion")
	}
}

func (o *Orchestrator) observe(syncType models.SyncType, result *RunResult, started time.Time) {
	metrics.ObserveSyncRun(string(syncType), string(result.Status), o.now().UTC().Sub(started))
	metrics.AddRecords("created", result.Created)
	metrics.AddRecords("updated", result.Updated)
	metrics.AddRecords("failed", result.Failed)
	metrics.AddRecords("skipped", result.Skipped)
	metrics.AddConflicts(len(result.Conflicts))
}

func firstOf(lists ...[]string) *string {
	for _, l := range lists {
		if len(l) > 0 {
			v := l[0]
			return &v
		}
	}
	return nil
}

// TestConnection fetches and parses every mapped feed without persisting anything
func (o *Orchestrator) TestConnection(ctx context.Context, tenantID, integrationID uuid.UUID) (*ConnectionReport, error) {
	integ, err := o.store.GetIntegration(ctx, tenantID, integrationID)
	if err != nil {
		return nil, err
	}
	mappings, err := o.store.Mappings(ctx, integ.ID)
	if err != nil {
		return nil, err
	}

	report := &ConnectionReport{Errors: []string{}}
	for _, m := range mappings {
		url, ok := m.FeedURL()
		if !ok {
			continue
		}
		report.FeedsConfigured++
		if _, err := o.feeds.FetchAndParse(ctx, url); err != nil {
			report.FeedsInvalid++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", m.Label(), err))
			continue
		}
		report.FeedsValid++
	}
	report.Connected = report.FeedsConfigured == 0 || report.FeedsValid > 0
	return report, nil
}

// RecentLogs returns the integration's most recent runs, newest first
func (o *Orchestrator) RecentLogs(ctx context.Context, tenantID, integrationID uuid.UUID, limit int) ([]models.SyncLog, error) {
	if _, err := o.store.GetIntegration(ctx, tenantID, integrationID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}
	return o.store.RecentLogs(ctx, integrationID, limit)
}

// IsBusy reports whether err means the integration is already syncing
func IsBusy(err error) bool {
	return errors.Is(err, apperr.ErrSyncInProgress)
}
