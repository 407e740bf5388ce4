// Package migration creates the service's two tables at startup so the
// service is usable out of the box for local and self-hosted setups.
// Production schema management stays outside the service.
package migration

import (
	"errors"

	enrichmentdomain "github.com/smallbiznis/enrich/internal/enrichment/domain"
	mcdomain "github.com/smallbiznis/enrich/internal/merchantcache/domain"
	"gorm.io/gorm"
)

func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&enrichmentdomain.EnrichmentRecord{},
		&mcdomain.MerchantCacheEntry{},
	)
}
