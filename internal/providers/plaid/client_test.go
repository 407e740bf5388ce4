package plaid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/enrich/internal/clock"
	"github.com/smallbiznis/enrich/internal/config"
	"github.com/smallbiznis/enrich/internal/observability/metrics"
	"github.com/smallbiznis/enrich/internal/providers/plaid/domain"
	"github.com/smallbiznis/enrich/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*config.ProviderConfig)) *client {
	t.Helper()

	cfg := config.DefaultProviderConfig()
	cfg.BaseURL = baseURL
	cfg.EnrichEndpoint = "/enrich"
	cfg.ClientID = "client-id"
	cfg.Secret = "secret"
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	c := NewClient(config.NewStaticProviderConfigHolder(cfg), clock.NewSystemClock(), m, zap.NewNop()).(*client)
	c.retry.WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
	return c
}

func sampleTransactions() []domain.Transaction {
	merchant := "Starbucks"
	return []domain.Transaction{
		{Description: "STARBUCKS COFFEE", Amount: 4.5, Date: "2024-01-15", MerchantName: &merchant},
		{Description: "UBER TRIP", Amount: 18.2, Date: "2024-01-16"},
	}
}

func TestEnrichSuccess(t *testing.T) {
	var gotBody domain.EnrichRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(domain.EnrichResponse{
			RequestID: "req-1",
			EnrichedTransactions: []domain.EnrichedTransaction{
				{ID: "tx-1", Category: "Food and Drink", MerchantName: "Starbucks"},
				{ID: "tx-2", Category: "Travel", MerchantName: "Uber"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, err := c.Enrich(context.Background(), "acct-1", sampleTransactions())

	require.NoError(t, err)
	require.Len(t, resp.EnrichedTransactions, 2)
	assert.Equal(t, "Starbucks", resp.EnrichedTransactions[0].MerchantName)
	assert.Equal(t, "Uber", resp.EnrichedTransactions[1].MerchantName)

	assert.Equal(t, "client-id", gotBody.ClientID)
	assert.Equal(t, "secret", gotBody.Secret)
	assert.Equal(t, "acct-1", gotBody.AccountID)
	require.Len(t, gotBody.Transactions, 2)
	assert.Equal(t, "STARBUCKS COFFEE", gotBody.Transactions[0].Description)
}

func TestEnrichRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"error_code":    "PLANNED_MAINTENANCE",
			"error_message": "service unavailable",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Enrich(context.Background(), "acct-1", sampleTransactions())

	require.Error(t, err)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "PLANNED_MAINTENANCE", apiErr.ErrorCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEnrichDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error_code":    "INVALID_REQUEST",
			"error_message": "account_id is required",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Enrich(context.Background(), "acct-1", sampleTransactions())

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)
	assert.Contains(t, apiErr.Error(), "account_id is required")
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnrichFailsFastWhenCircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *config.ProviderConfig) {
		cfg.Retry.MaxAttempts = 1
		cfg.Breaker.WindowSize = 4
		cfg.Breaker.MinimumCalls = 2
	})

	for i := 0; i < 2; i++ {
		_, err := c.Enrich(context.Background(), "acct-1", sampleTransactions())
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, c.breaker.State())
	before := calls.Load()

	_, err := c.Enrich(context.Background(), "acct-1", sampleTransactions())

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.KindCircuitOpen, apiErr.Kind)
	assert.Equal(t, before, calls.Load())
}

func TestEnrichMismatchedResultCountIsDecodeError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(domain.EnrichResponse{
			RequestID:            "req-1",
			EnrichedTransactions: []domain.EnrichedTransaction{{ID: "tx-1"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Enrich(context.Background(), "acct-1", sampleTransactions())

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.KindDecode, apiErr.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnrichRejectsBeyondBulkheadCapacity(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(domain.EnrichResponse{
			EnrichedTransactions: make([]domain.EnrichedTransaction, 2),
		})
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, func(cfg *config.ProviderConfig) {
		cfg.Bulkhead.MaxConcurrent = 1
		cfg.Bulkhead.MaxWaitSeconds = 1
	})

	started := make(chan struct{})
	go func() {
		close(started)
		c.Enrich(context.Background(), "acct-1", sampleTransactions())
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	_, err := c.Enrich(context.Background(), "acct-2", sampleTransactions())

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.KindCapacity, apiErr.Kind)
}
