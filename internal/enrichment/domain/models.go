// Package domain defines the enrichment request lifecycle: the API types
// exchanged with callers, the persisted audit record and the service and
// repository contracts.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// EnrichmentRecord is the durable audit trail of one enrichment request.
// It is created PENDING before any external call and transitions exactly
// once to SUCCESS or FAILED. CreatedAt is set at creation and not touched
// on the terminal transition.
type EnrichmentRecord struct {
	RequestID        string         `gorm:"column:request_id;primaryKey"`
	OriginalRequest  datatypes.JSON `gorm:"not null"`
	ProviderResponse datatypes.JSON
	Status           string    `gorm:"type:varchar(16);not null;index"`
	ErrorMessage     string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (EnrichmentRecord) TableName() string { return "enrichment_requests" }
