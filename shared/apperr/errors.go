package apperr

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when another run already holds the lease for an integration.
var ErrSyncInProgress = errors.New("sync already in progress for this integration")

// ValidationError reports malformed input: inverted date ranges, guest counts over capacity.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError for a field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown room, integration or mapping.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ExternalFeedError wraps a fetch or parse failure of one calendar feed.
type ExternalFeedError struct {
	URL string
	Err error
}

func (e *ExternalFeedError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.URL, e.Err)
}

func (e *ExternalFeedError) Unwrap() error { return e.Err }

// FeedError builds an ExternalFeedError.
func FeedError(url string, err error) error {
	return &ExternalFeedError{URL: url, Err: err}
}

// PersistenceError wraps a ledger write failure for a single record.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence builds a PersistenceError.
func Persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// ConflictWarning is advisory: a newly ingested reservation overlaps existing ones.
// It is never returned as an error.
type ConflictWarning struct {
	ExternalID  string   `json:"external_id"`
	BookingIDs  []string `json:"booking_ids"`
	Description string   `json:"description"`
}

func (w ConflictWarning) String() string { return w.Description }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsExternalFeed reports whether err is (or wraps) an ExternalFeedError.
func IsExternalFeed(err error) bool {
	var fe *ExternalFeedError
	return errors.As(err, &fe)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
