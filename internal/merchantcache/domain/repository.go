package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository is the merchant cache store. Insert is deliberately not
// guarded by a lookup: concurrent first writers race on the key's unique
// constraint and the loser must re-Find the winning entry.
type Repository interface {
	// Find returns the entry for the normalized key, or nil when absent.
	Find(ctx context.Context, db *gorm.DB, description, merchantName string) (*MerchantCacheEntry, error)
	// Insert writes a new entry; a concurrent winner surfaces as a
	// duplicate-key error (see pkg/db.IsDuplicateKeyErr).
	Insert(ctx context.Context, db *gorm.DB, entry *MerchantCacheEntry) error
}
