package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/enrich/internal/enrichment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.EnrichmentRecord) error {
	if record == nil {
		return nil
	}
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, requestID string) (*domain.EnrichmentRecord, error) {
	var record domain.EnrichmentRecord
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) UpdateOutcome(ctx context.Context, db *gorm.DB, requestID, status, errorMessage string, providerResponse datatypes.JSON) error {
	updates := map[string]any{
		"status":        status,
		"error_message": errorMessage,
	}
	if providerResponse != nil {
		updates["provider_response"] = providerResponse
	}
	return db.WithContext(ctx).
		Model(&domain.EnrichmentRecord{}).
		Where("request_id = ?", requestID).
		Updates(updates).Error
}

func (r *repo) FindByStatus(ctx context.Context, db *gorm.DB, status string) ([]domain.EnrichmentRecord, error) {
	var records []domain.EnrichmentRecord
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Find(&records).Error
	return records, err
}

func (r *repo) FindByCreatedAtBetween(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.EnrichmentRecord, error) {
	var records []domain.EnrichmentRecord
	err := db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.EnrichmentRecord{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
