// Package ledger is the gorm-backed store for rooms, bookings and channel integrations.
// Every booking query is scoped by tenant.
package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
)

// Repository implements the booking ledger, the pricing store and the integration store
type Repository struct {
	db *gorm.DB
}

// New wraps a gorm connection
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks that the database answers
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// notFound converts gorm.ErrRecordNotFound into the typed NotFoundError
func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, id)
	}
	return err
}
