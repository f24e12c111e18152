// Package notify publishes sync outcomes for downstream notification delivery.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Topic carries SyncSummary events
const Topic = "channel-sync-events"

// SyncSummary is emitted once per completed sync run
type SyncSummary struct {
	EventID       uuid.UUID `json:"event_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	IntegrationID uuid.UUID `json:"integration_id"`
	Platform      string    `json:"platform"`
	LogID         uuid.UUID `json:"log_id"`
	SyncType      string    `json:"sync_type"`
	Status        string    `json:"status"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	Errors        []string  `json:"errors"`
	Conflicts     []string  `json:"conflicts"`
	// Rooms lists the mapping labels reconciled in this run
	Rooms []string `json:"rooms"`
	// HardFailure is set when the run reported errors and ingested nothing
	HardFailure bool      `json:"hard_failure"`
	CompletedAt time.Time `json:"completed_at"`
}

// EventType is the header value identifying the summary kind
func (s SyncSummary) EventType() string {
	if s.HardFailure {
		return "sync_failed"
	}
	if len(s.Conflicts) > 0 {
		return "sync_conflicts"
	}
	return "sync_completed"
}
