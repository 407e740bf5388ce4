// Package domain contains the persistence model for the merchant-level
// enrichment cache.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// MerchantCacheEntry caches the provider enrichment for one
// (description, merchantName) pair. Entries are immutable once written and
// are never evicted; the first writer for a key wins for the lifetime of
// the system.
type MerchantCacheEntry struct {
	MerchantID       string         `gorm:"column:merchant_id;primaryKey"`
	Description      string         `gorm:"type:text;not null;uniqueIndex:idx_merchant_cache_key"`
	MerchantName     string         `gorm:"type:text;not null;uniqueIndex:idx_merchant_cache_key"`
	ProviderResponse datatypes.JSON `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (MerchantCacheEntry) TableName() string { return "merchant_cache" }

// NormalizeMerchantName coerces an absent merchant-name hint to the empty
// string. Every cache caller must key through this helper so lookups and
// inserts agree on the same key.
func NormalizeMerchantName(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}
