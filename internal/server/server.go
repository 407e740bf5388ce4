// Package server exposes the enrichment orchestrator over HTTP: request
// validation, status mapping and the operational endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/enrich/internal/config"
	"github.com/smallbiznis/enrich/internal/enrichment"
	enrichmentdomain "github.com/smallbiznis/enrich/internal/enrichment/domain"
	"github.com/smallbiznis/enrich/internal/identifier"
	"github.com/smallbiznis/enrich/internal/merchantcache"
	"github.com/smallbiznis/enrich/internal/observability"
	obsmiddleware "github.com/smallbiznis/enrich/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/enrich/internal/observability/metrics"
	obstracing "github.com/smallbiznis/enrich/internal/observability/tracing"
	"github.com/smallbiznis/enrich/internal/providers/plaid"
	"github.com/smallbiznis/enrich/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	merchantcache.Module,
	plaid.Module,
	enrichment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *identifier.Generator
	enrichmentSvc enrichmentdomain.Service
	auditRepo     enrichmentdomain.Repository
	enrichLimiter *ratelimit.EnrichLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *identifier.Generator
	EnrichmentSvc enrichmentdomain.Service
	AuditRepo     enrichmentdomain.Repository
	EnrichLimiter *ratelimit.EnrichLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		enrichmentSvc: p.EnrichmentSvc,
		auditRepo:     p.AuditRepo,
		enrichLimiter: p.EnrichLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/enrich", s.EnrichRateLimit(), s.EnrichTransactions)
	api.POST("/enrich/batch", s.EnrichRateLimit(), s.EnrichTransactionsBatch)
	api.GET("/enrich/stats", s.GetEnrichmentStats)
	api.GET("/enrich/:requestId", s.GetEnrichmentByID)
}
