package server

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/enrich/internal/clock"
	"github.com/smallbiznis/enrich/internal/config"
	enrichmentdomain "github.com/smallbiznis/enrich/internal/enrichment/domain"
	enrichmentrepository "github.com/smallbiznis/enrich/internal/enrichment/repository"
	enrichmentservice "github.com/smallbiznis/enrich/internal/enrichment/service"
	"github.com/smallbiznis/enrich/internal/identifier"
	mcdomain "github.com/smallbiznis/enrich/internal/merchantcache/domain"
	mcrepository "github.com/smallbiznis/enrich/internal/merchantcache/repository"
	"github.com/smallbiznis/enrich/internal/observability"
	"github.com/smallbiznis/enrich/internal/observability/metrics"
	plaiddomain "github.com/smallbiznis/enrich/internal/providers/plaid/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeProvider drives server tests without a real upstream. The fn hook
// lets a test choose failures per call.
type fakeProvider struct {
	fn func(accountID string, txs []plaiddomain.Transaction) (*plaiddomain.EnrichResponse, error)
}

func (p *fakeProvider) Enrich(ctx context.Context, accountID string, txs []plaiddomain.Transaction) (*plaiddomain.EnrichResponse, error) {
	if p.fn != nil {
		return p.fn(accountID, txs)
	}
	enriched := make([]plaiddomain.EnrichedTransaction, len(txs))
	for i, tx := range txs {
		enriched[i] = plaiddomain.EnrichedTransaction{
			ID:              "tx-1",
			Category:        "Food and Drink",
			CategoryID:      "13005000",
			MerchantName:    tx.Description,
			LogoURL:         "https://logo.example.com/m.png",
			ConfidenceLevel: "HIGH",
		}
	}
	return &plaiddomain.EnrichResponse{EnrichedTransactions: enriched, RequestID: "plaid-req"}, nil
}

func newTestServer(t *testing.T, provider plaiddomain.Client) (*Server, *gorm.DB) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&enrichmentdomain.EnrichmentRecord{}, &mcdomain.MerchantCacheEntry{}))

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	httpMetrics, err := metrics.NewHTTPMetrics(reg)
	require.NoError(t, err)

	genID := identifier.NewGenerator()
	svc := enrichmentservice.New(enrichmentservice.Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    genID,
		Repo:     enrichmentrepository.Provide(),
		Cache:    mcrepository.Provide(),
		Provider: provider,
		Metrics:  m,
		Clock:    clock.NewSystemClock(),
	})

	engine := NewEngine(observability.Config{}, httpMetrics)
	srv := NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{},
		DB:            gdb,
		GenID:         genID,
		EnrichmentSvc: svc,
		AuditRepo:     enrichmentrepository.Provide(),
	})
	return srv, gdb
}
