package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/enrich/internal/config"
)

const keyEnrichAccount = "enrich:account:"

// EnrichLimiter throttles enrichment submissions per account. It is
// disabled unless the rate limit config enables it; a nil limiter allows
// everything.
type EnrichLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewEnrichLimiter(cfg config.Config) (*EnrichLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.EnrichRate <= 0 || limitCfg.EnrichBurst <= 0 {
		return nil, errors.New("enrich rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &EnrichLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.EnrichRate,
		burst:   limitCfg.EnrichBurst,
	}, nil
}

func (l *EnrichLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowAccount takes one token from the account's bucket. Requests
// without a usable account id share a single bucket.
func (l *EnrichLimiter) AllowAccount(ctx context.Context, accountID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := keyEnrichAccount + strings.TrimSpace(accountID)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
