// Package scheduler runs the background sweep over the enrichment audit
// trail. A request that stays PENDING never recovers on its own: the
// process that created it either crashed or lost its database connection
// mid flight. The sweep makes those records visible through logs and
// gauges so operators can reconcile them.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/enrich/internal/clock"
	enrichmentdomain "github.com/smallbiznis/enrich/internal/enrichment/domain"
	obsmetrics "github.com/smallbiznis/enrich/internal/observability/metrics"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    enrichmentdomain.Repository
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
	Config  Config              `optional:"true"`
}

// Scheduler periodically inspects PENDING audit records and reports the
// ones older than the staleness threshold.
type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	repo    enrichmentdomain.Repository
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}, nil
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	pending, err := s.repo.FindByStatus(ctx, s.db, enrichmentdomain.StatusPending)
	if err != nil {
		return err
	}

	cutoff := s.clock.Now().Add(-s.cfg.StaleThreshold)
	stale := make([]string, 0)
	var oldest time.Time
	for _, record := range pending {
		if record.CreatedAt.After(cutoff) {
			continue
		}
		if oldest.IsZero() || record.CreatedAt.Before(oldest) {
			oldest = record.CreatedAt
		}
		stale = append(stale, record.RequestID)
	}

	s.metrics.SetPendingBacklog(float64(len(pending)), float64(len(stale)))

	if len(stale) == 0 {
		s.log.Debug("pending sweep clean", zap.Int("pending", len(pending)))
		return nil
	}

	reported := stale
	if len(reported) > s.cfg.MaxReported {
		reported = reported[:s.cfg.MaxReported]
	}
	s.log.Warn("stale pending enrichment requests",
		zap.Int("pending", len(pending)),
		zap.Int("stale", len(stale)),
		zap.Time("oldest_created_at", oldest),
		zap.Strings("request_ids", reported),
	)
	return nil
}

// RunForever sweeps on the configured interval until ctx is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("pending sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
