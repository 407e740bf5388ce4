// Package service implements the enrichment orchestrator: audit
// lifecycle, cache-aside merchant resolution, provider calls for misses
// and order-preserving result assembly.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/enrich/internal/clock"
	"github.com/smallbiznis/enrich/internal/enrichment/domain"
	"github.com/smallbiznis/enrich/internal/identifier"
	mcdomain "github.com/smallbiznis/enrich/internal/merchantcache/domain"
	obslogger "github.com/smallbiznis/enrich/internal/observability/logger"
	"github.com/smallbiznis/enrich/internal/observability/metrics"
	plaiddomain "github.com/smallbiznis/enrich/internal/providers/plaid/domain"
	"github.com/smallbiznis/enrich/pkg/db"
	"github.com/smallbiznis/enrich/pkg/payload"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *identifier.Generator
	Repo     domain.Repository
	Cache    mcdomain.Repository
	Provider plaiddomain.Client
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *identifier.Generator
	repo     domain.Repository
	cache    mcdomain.Repository
	provider plaiddomain.Client
	metrics  *metrics.Metrics
	clock    clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("enrichment.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		cache:    p.Cache,
		provider: p.Provider,
		metrics:  p.Metrics,
		clock:    p.Clock,
	}
}

// cacheKey identifies one merchant cache slot within a request. The
// merchant name component is always the normalized form.
type cacheKey struct {
	description  string
	merchantName string
}

func keyFor(tx domain.Transaction) cacheKey {
	return cacheKey{
		description:  tx.Description,
		merchantName: mcdomain.NormalizeMerchantName(tx.MerchantName),
	}
}

func (s *Service) Enrich(ctx context.Context, req domain.EnrichmentRequest) (*domain.EnrichmentResult, error) {
	requestID, err := s.acceptRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	result := s.enrichCore(ctx, requestID, req)
	return result, nil
}

func (s *Service) EnrichBatch(ctx context.Context, reqs []domain.EnrichmentRequest) ([]domain.EnrichmentResult, error) {
	log := obslogger.FromContext(ctx)
	log.Info("starting batch enrichment", zap.Int("items", len(reqs)))

	// Every item gets its PENDING audit record before any concurrent
	// processing starts, so the whole batch is auditable up front.
	requestIDs := make([]string, len(reqs))
	for i, req := range reqs {
		requestID, err := s.acceptRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		requestIDs[i] = requestID
	}

	results := make([]domain.EnrichmentResult, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = *s.enrichCore(ctx, requestIDs[i], reqs[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Status == domain.StatusSuccess {
			succeeded++
		}
	}
	log.Info("completed batch enrichment",
		zap.Int("succeeded", succeeded),
		zap.Int("items", len(results)),
	)
	return results, nil
}

func (s *Service) GetByID(ctx context.Context, requestID string) (*domain.EnrichmentResult, error) {
	record, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if record.Status != domain.StatusSuccess {
		return &domain.EnrichmentResult{
			RequestID:            record.RequestID,
			EnrichedTransactions: []domain.EnrichedTransaction{},
			ProcessedAt:          record.CreatedAt,
			Status:               record.Status,
			ErrorMessage:         record.ErrorMessage,
		}, nil
	}

	var original domain.EnrichmentRequest
	if err := payload.Unmarshal(record.OriginalRequest, &original); err != nil {
		return nil, fmt.Errorf("decode stored request %s: %w", record.RequestID, err)
	}

	// Reconstruct from the cache's current content. A transaction whose
	// entry has since disappeared is omitted, not an error.
	enriched := make([]domain.EnrichedTransaction, 0, len(original.Transactions))
	for _, tx := range original.Transactions {
		key := keyFor(tx)
		entry, err := s.cache.Find(ctx, s.db, key.description, key.merchantName)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		mapped, err := enrichedFromEntry(entry)
		if err != nil {
			return nil, err
		}
		enriched = append(enriched, mapped)
	}

	return &domain.EnrichmentResult{
		RequestID:            record.RequestID,
		EnrichedTransactions: enriched,
		ProcessedAt:          record.CreatedAt,
		Status:               domain.StatusSuccess,
	}, nil
}

// acceptRequest assigns a request id and writes the PENDING audit record.
// A failure here means the request was never accepted and is the only
// condition the orchestrator surfaces as an error.
func (s *Service) acceptRequest(ctx context.Context, req domain.EnrichmentRequest) (string, error) {
	requestID := s.genID.Generate()

	raw, err := payload.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	record := &domain.EnrichmentRecord{
		RequestID:       requestID,
		OriginalRequest: raw,
		Status:          domain.StatusPending,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return "", fmt.Errorf("persist audit record: %w", err)
	}
	return requestID, nil
}

// enrichCore runs steps 2-6 of one request: partition against the cache,
// call the provider for misses, populate the cache, assemble the ordered
// result and apply the terminal audit transition. It never returns an
// error; every failure becomes a FAILED result.
func (s *Service) enrichCore(ctx context.Context, requestID string, req domain.EnrichmentRequest) *domain.EnrichmentResult {
	log := obslogger.FromContext(ctx).With(zap.String("enrichment_request_id", requestID))

	resolved := make(map[cacheKey]*mcdomain.MerchantCacheEntry)
	var misses []domain.Transaction

	for _, tx := range req.Transactions {
		key := keyFor(tx)
		if _, ok := resolved[key]; ok {
			continue
		}
		entry, err := s.cache.Find(ctx, s.db, key.description, key.merchantName)
		if err != nil {
			return s.fail(ctx, log, requestID, fmt.Sprintf("cache lookup failed: %v", err))
		}
		if entry != nil {
			s.metrics.RecordCacheLookup(true)
			resolved[key] = entry
		} else {
			s.metrics.RecordCacheLookup(false)
			misses = append(misses, tx)
		}
	}

	var providerResp *plaiddomain.EnrichResponse
	if len(misses) > 0 {
		providerTxs := make([]plaiddomain.Transaction, len(misses))
		for i, tx := range misses {
			providerTxs[i] = plaiddomain.Transaction{
				Description:  tx.Description,
				Amount:       tx.Amount,
				Date:         tx.Date,
				MerchantName: tx.MerchantName,
			}
		}

		resp, err := s.provider.Enrich(ctx, req.AccountID, providerTxs)
		if err != nil {
			return s.fail(ctx, log, requestID, err.Error())
		}
		providerResp = resp

		for i, tx := range misses {
			key := keyFor(tx)
			entry, err := s.storeCacheEntry(ctx, key, resp.EnrichedTransactions[i])
			if err != nil {
				return s.fail(ctx, log, requestID, err.Error())
			}
			resolved[key] = entry
		}
	}

	enriched := make([]domain.EnrichedTransaction, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		entry := resolved[keyFor(tx)]
		if entry == nil {
			continue
		}
		mapped, err := enrichedFromEntry(entry)
		if err != nil {
			return s.fail(ctx, log, requestID, err.Error())
		}
		enriched = append(enriched, mapped)
	}

	var respJSON []byte
	if providerResp != nil {
		raw, err := payload.Marshal(providerResp)
		if err != nil {
			return s.fail(ctx, log, requestID, fmt.Sprintf("encode provider response: %v", err))
		}
		respJSON = raw
	}
	if err := s.repo.UpdateOutcome(ctx, s.db, requestID, domain.StatusSuccess, "", respJSON); err != nil {
		return s.fail(ctx, log, requestID, fmt.Sprintf("persist audit outcome: %v", err))
	}

	s.metrics.RecordEnrichRequest("success")
	log.Info("enrichment succeeded",
		zap.Int("transactions", len(req.Transactions)),
		zap.Int("cache_misses", len(misses)),
	)
	return &domain.EnrichmentResult{
		RequestID:            requestID,
		EnrichedTransactions: enriched,
		ProcessedAt:          s.clock.Now(),
		Status:               domain.StatusSuccess,
	}
}

// storeCacheEntry inserts a fresh entry for one provider result. Losing
// the insert race to a concurrent writer is not an error: the winner's
// entry is re-read and used instead.
func (s *Service) storeCacheEntry(ctx context.Context, key cacheKey, result plaiddomain.EnrichedTransaction) (*mcdomain.MerchantCacheEntry, error) {
	blob, err := payload.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode enrichment for cache: %w", err)
	}

	entry := &mcdomain.MerchantCacheEntry{
		MerchantID:       s.genID.Generate(),
		Description:      key.description,
		MerchantName:     key.merchantName,
		ProviderResponse: blob,
		CreatedAt:        s.clock.Now(),
	}
	insertErr := s.cache.Insert(ctx, s.db, entry)
	if insertErr == nil {
		return entry, nil
	}
	if !db.IsDuplicateKeyErr(insertErr) {
		return nil, fmt.Errorf("persist cache entry: %w", insertErr)
	}

	winner, err := s.cache.Find(ctx, s.db, key.description, key.merchantName)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("cache entry for %q disappeared after insert race", key.description)
	}
	return winner, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, requestID, message string) *domain.EnrichmentResult {
	if err := s.repo.UpdateOutcome(ctx, s.db, requestID, domain.StatusFailed, message, nil); err != nil {
		log.Error("failed to persist audit outcome", zap.Error(err))
	}
	s.metrics.RecordEnrichRequest("failed")
	log.Warn("enrichment failed", zap.String("reason", message))
	return &domain.EnrichmentResult{
		RequestID:            requestID,
		EnrichedTransactions: []domain.EnrichedTransaction{},
		ProcessedAt:          s.clock.Now(),
		Status:               domain.StatusFailed,
		ErrorMessage:         message,
	}
}

// enrichedFromEntry maps a cached provider payload into the public shape.
// Provider metadata fields are merged verbatim over the standard keys.
func enrichedFromEntry(entry *mcdomain.MerchantCacheEntry) (domain.EnrichedTransaction, error) {
	var stored plaiddomain.EnrichedTransaction
	if err := payload.Unmarshal(entry.ProviderResponse, &stored); err != nil {
		return domain.EnrichedTransaction{}, fmt.Errorf("decode cached enrichment for merchant %s: %w", entry.MerchantID, err)
	}

	metadata := map[string]any{
		"categoryId":      stored.CategoryID,
		"website":         stored.Website,
		"confidenceLevel": stored.ConfidenceLevel,
	}
	for k, v := range stored.EnrichmentMetadata {
		metadata[k] = v
	}

	return domain.EnrichedTransaction{
		TransactionID: stored.ID,
		MerchantID:    entry.MerchantID,
		Category:      stored.Category,
		MerchantName:  stored.MerchantName,
		LogoURL:       stored.LogoURL,
		Metadata:      metadata,
	}, nil
}
