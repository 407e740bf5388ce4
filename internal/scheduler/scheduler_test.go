package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/enrich/internal/clock"
	enrichmentdomain "github.com/smallbiznis/enrich/internal/enrichment/domain"
	enrichmentrepo "github.com/smallbiznis/enrich/internal/enrichment/repository"
	obsmetrics "github.com/smallbiznis/enrich/internal/observability/metrics"
)

func newTestScheduler(t *testing.T, clk clock.Clock) (*Scheduler, *gorm.DB, *prometheus.Registry) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&enrichmentdomain.EnrichmentRecord{}))

	reg := prometheus.NewRegistry()
	metrics, err := obsmetrics.New(reg)
	require.NoError(t, err)

	sched, err := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    enrichmentrepo.Provide(),
		Clock:   clk,
		Metrics: metrics,
		Config:  Config{StaleThreshold: 5 * time.Minute},
	})
	require.NoError(t, err)
	return sched, conn, reg
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			require.Len(t, family.GetMetric(), 1)
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("gauge %s not found", name)
	return 0
}

func insertRecord(t *testing.T, conn *gorm.DB, id, status string, createdAt time.Time) {
	t.Helper()
	record := enrichmentdomain.EnrichmentRecord{
		RequestID:       id,
		OriginalRequest: []byte(`{}`),
		Status:          status,
		CreatedAt:       createdAt,
	}
	require.NoError(t, conn.Create(&record).Error)
}

func TestRunOnceNoPending(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, conn, reg := newTestScheduler(t, clk)

	insertRecord(t, conn, "req-done", enrichmentdomain.StatusSuccess, clk.Now().Add(-time.Hour))

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 0.0, gaugeValue(t, reg, "enrich_pending_requests"))
	require.Equal(t, 0.0, gaugeValue(t, reg, "enrich_stale_pending_requests"))
}

func TestRunOnceFreshPendingNotStale(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, conn, reg := newTestScheduler(t, clk)

	insertRecord(t, conn, "req-fresh", enrichmentdomain.StatusPending, clk.Now().Add(-time.Minute))

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 1.0, gaugeValue(t, reg, "enrich_pending_requests"))
	require.Equal(t, 0.0, gaugeValue(t, reg, "enrich_stale_pending_requests"))
}

func TestRunOnceReportsStalePending(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, conn, reg := newTestScheduler(t, clk)

	insertRecord(t, conn, "req-stale", enrichmentdomain.StatusPending, clk.Now().Add(-time.Hour))
	insertRecord(t, conn, "req-fresh", enrichmentdomain.StatusPending, clk.Now())

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 2.0, gaugeValue(t, reg, "enrich_pending_requests"))
	require.Equal(t, 1.0, gaugeValue(t, reg, "enrich_stale_pending_requests"))

	// Advancing the clock past the threshold makes the fresh record
	// stale as well.
	clk.Advance(10 * time.Minute)
	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 2.0, gaugeValue(t, reg, "enrich_stale_pending_requests"))
}

func TestRunOnceCapsReportedIDs(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, conn, reg := newTestScheduler(t, clk)
	sched.cfg.MaxReported = 3

	for i := 0; i < 10; i++ {
		insertRecord(t, conn, fmt.Sprintf("req-%02d", i), enrichmentdomain.StatusPending, clk.Now().Add(-time.Hour))
	}

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 10.0, gaugeValue(t, reg, "enrich_stale_pending_requests"))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop(), Clock: clock.NewSystemClock()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
