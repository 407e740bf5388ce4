package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/enrich/internal/enrichment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.EnrichmentRecord{}))
	return db
}

func pendingRecord(requestID string, createdAt time.Time) *domain.EnrichmentRecord {
	return &domain.EnrichmentRecord{
		RequestID:       requestID,
		OriginalRequest: datatypes.JSON(`{"v":1,"data":{"accountId":"acct-1"}}`),
		Status:          domain.StatusPending,
		CreatedAt:       createdAt,
	}
}

func TestFindByIDReturnsNilWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()

	record, err := repo.FindByID(context.Background(), db, "missing")
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func TestInsertThenFindByID(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-1", created)))

	got, err := repo.FindByID(ctx, db, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Nil(t, got.ProviderResponse)
}

func TestUpdateOutcomeSuccess(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-1", created)))

	resp := datatypes.JSON(`{"v":1,"data":{"request_id":"plaid-1"}}`)
	require.NoError(t, repo.UpdateOutcome(ctx, db, "req-1", domain.StatusSuccess, "", resp))

	got, err := repo.FindByID(ctx, db, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.JSONEq(t, string(resp), string(got.ProviderResponse))
	assert.Equal(t, created, got.CreatedAt.UTC())
}

func TestUpdateOutcomeFailureKeepsProviderResponseEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-1", time.Now())))
	require.NoError(t, repo.UpdateOutcome(ctx, db, "req-1", domain.StatusFailed, "provider error 503: service unavailable", nil))

	got, err := repo.FindByID(ctx, db, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "provider error 503: service unavailable", got.ErrorMessage)
	assert.Nil(t, got.ProviderResponse)
}

func TestFindByStatusAndCountByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-1", time.Now())))
	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-2", time.Now())))
	require.NoError(t, repo.UpdateOutcome(ctx, db, "req-2", domain.StatusFailed, "boom", nil))

	pending, err := repo.FindByStatus(ctx, db, domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].RequestID)

	failed, err := repo.CountByStatus(ctx, db, domain.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestFindByCreatedAtBetweenOrdersNewestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-old", base.Add(-2*time.Hour))))
	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-mid", base.Add(-time.Hour))))
	require.NoError(t, repo.Insert(ctx, db, pendingRecord("req-new", base)))

	records, err := repo.FindByCreatedAtBetween(ctx, db, base.Add(-90*time.Minute), base)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "req-new", records[0].RequestID)
	assert.Equal(t, "req-mid", records[1].RequestID)
}
