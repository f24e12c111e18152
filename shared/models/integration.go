package models

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Integration connects a tenant to one external booking channel
type Integration struct {
	ID                  uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID            uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Platform            string     `json:"platform" gorm:"type:varchar(50);not null"`
	Credentials         string     `json:"-" gorm:"type:text;<-:create"`
	WebhookSecret       string     `json:"-" gorm:"type:varchar(64);<-:create"`
	IsActive            bool       `json:"is_active" gorm:"default:true"`
	IsConnected         bool       `json:"is_connected" gorm:"default:false"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	LastError           *string    `json:"last_error,omitempty" gorm:"type:text"`
	AutoSyncEnabled     bool       `json:"auto_sync_enabled" gorm:"default:false"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes" gorm:"default:60"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Mappings []RoomMapping `json:"mappings,omitempty" gorm:"foreignKey:IntegrationID"`
}

// TableName returns the table name for the Integration model
func (Integration) TableName() string {
	return "integrations"
}

// NewIntegration builds an integration whose secret material is fixed at creation.
// Credentials and WebhookSecret are create-only columns and are never updated afterwards.
func NewIntegration(tenantID uuid.UUID, platform, credentials string) (*Integration, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	return &Integration{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		Platform:            platform,
		Credentials:         credentials,
		WebhookSecret:       secret,
		IsActive:            true,
		SyncIntervalMinutes: 60,
	}, nil
}

// SyncInterval returns the auto-sync period, defaulting to one hour
func (i *Integration) SyncInterval() time.Duration {
	if i.SyncIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(i.SyncIntervalMinutes) * time.Minute
}

// DueAt reports whether a scheduled sync should run at now
func (i *Integration) DueAt(now time.Time) bool {
	if !i.IsActive || !i.AutoSyncEnabled {
		return false
	}
	if i.LastSyncedAt == nil {
		return true
	}
	return !i.LastSyncedAt.Add(i.SyncInterval()).After(now)
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RoomMapping links an internal room to a room on the external channel
type RoomMapping struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	IntegrationID  uuid.UUID `json:"integration_id" gorm:"type:uuid;not null;index"`
	RoomID         uuid.UUID `json:"room_id" gorm:"type:uuid;not null;index"`
	ExternalRoomID string    `json:"external_room_id" gorm:"type:varchar(255)"`
	ICalURL        *string   `json:"ical_url,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// RoomName is filled when the mapping is loaded for display
	RoomName *string `json:"room_name,omitempty" gorm:"-"`
}

// TableName returns the table name for the RoomMapping model
func (RoomMapping) TableName() string {
	return "integration_room_mappings"
}

// FeedURL returns the configured iCal URL, if any
func (m *RoomMapping) FeedURL() (string, bool) {
	if m.ICalURL == nil || *m.ICalURL == "" {
		return "", false
	}
	return *m.ICalURL, true
}

// Label names the mapping in log lines and error messages
func (m *RoomMapping) Label() string {
	if m.RoomName != nil && *m.RoomName != "" {
		return *m.RoomName
	}
	if m.ExternalRoomID != "" {
		return m.ExternalRoomID
	}
	return m.RoomID.String()
}

// SyncStatus represents the run-level state of a sync
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusPartial    SyncStatus = "partial"
	SyncStatusWarning    SyncStatus = "warning"
	SyncStatusFailed     SyncStatus = "failed"
)

// SyncType describes what triggered a run
type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeScheduled SyncType = "scheduled"
)

// SyncDirectionInbound marks runs that pull external feeds into the ledger
const SyncDirectionInbound = "inbound"

var syncTransitions = map[SyncStatus][]SyncStatus{
	SyncStatusPending:    {SyncStatusInProgress, SyncStatusFailed},
	SyncStatusInProgress: {SyncStatusSuccess, SyncStatusPartial, SyncStatusWarning, SyncStatusFailed},
}

// IsTerminal reports whether no further transitions are allowed
func (s SyncStatus) IsTerminal() bool {
	_, ok := syncTransitions[s]
	return !ok
}

// CanTransition reports whether from → to is a legal state change
func CanTransition(from, to SyncStatus) bool {
	for _, next := range syncTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SyncLog records one sync run of an integration
type SyncLog struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	IntegrationID  uuid.UUID      `json:"integration_id" gorm:"type:uuid;not null;index"`
	SyncType       SyncType       `json:"sync_type" gorm:"type:varchar(20);not null"`
	Direction      string         `json:"direction" gorm:"type:varchar(20);not null;default:'inbound'"`
	Status         SyncStatus     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	StartedAt      time.Time      `json:"started_at" gorm:"index"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	RecordsCreated int            `json:"records_created"`
	RecordsUpdated int            `json:"records_updated"`
	RecordsFailed  int            `json:"records_failed"`
	RecordsSkipped int            `json:"records_skipped"`
	ErrorMessage   *string        `json:"error_message,omitempty" gorm:"type:text"`
	Errors         datatypes.JSON `json:"errors,omitempty" gorm:"type:jsonb"`
	Conflicts      datatypes.JSON `json:"conflicts,omitempty" gorm:"type:jsonb"`
}

// TableName returns the table name for the SyncLog model
func (SyncLog) TableName() string {
	return "integration_sync_logs"
}

// Transition moves the log to the next status, rejecting illegal changes
func (l *SyncLog) Transition(to SyncStatus) error {
	if !CanTransition(l.Status, to) {
		return fmt.Errorf("illegal sync status transition %s -> %s", l.Status, to)
	}
	l.Status = to
	return nil
}

// SetDetails stores the per-mapping errors and conflict descriptions as JSON
func (l *SyncLog) SetDetails(errs, conflicts []string) error {
	if errs == nil {
		errs = []string{}
	}
	if conflicts == nil {
		conflicts = []string{}
	}
	e, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	c, err := json.Marshal(conflicts)
	if err != nil {
		return err
	}
	l.Errors = datatypes.JSON(e)
	l.Conflicts = datatypes.JSON(c)
	return nil
}
