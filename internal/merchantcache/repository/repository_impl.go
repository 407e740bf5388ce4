package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/enrich/internal/merchantcache/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, description, merchantName string) (*domain.MerchantCacheEntry, error) {
	var entry domain.MerchantCacheEntry
	err := db.WithContext(ctx).
		Where("description = ? AND merchant_name = ?", description, merchantName).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.MerchantCacheEntry) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}
