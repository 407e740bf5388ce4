package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository persists enrichment audit records. Every record is written
// by exactly one request lifecycle, so no write-write race handling is
// needed here.
type Repository interface {
	// Insert writes the initial PENDING record.
	Insert(ctx context.Context, db *gorm.DB, record *EnrichmentRecord) error
	// FindByID returns the record, or nil when absent.
	FindByID(ctx context.Context, db *gorm.DB, requestID string) (*EnrichmentRecord, error)
	// UpdateOutcome applies the terminal status transition. The provider
	// response is stored only when non-nil.
	UpdateOutcome(ctx context.Context, db *gorm.DB, requestID, status, errorMessage string, providerResponse datatypes.JSON) error
	// FindByStatus lists records in a given lifecycle status.
	FindByStatus(ctx context.Context, db *gorm.DB, status string) ([]EnrichmentRecord, error)
	// FindByCreatedAtBetween lists records created in [start, end],
	// newest first.
	FindByCreatedAtBetween(ctx context.Context, db *gorm.DB, start, end time.Time) ([]EnrichmentRecord, error)
	// CountByStatus counts records in a given lifecycle status.
	CountByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error)
}
