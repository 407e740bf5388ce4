package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/enrich/internal/observability/logger"
	"go.uber.org/zap"
)

// EnrichRateLimit throttles enrichment submissions per account. The
// account id is peeked from the request body; requests without one fall
// back to a per-client-IP bucket.
func (s *Server) EnrichRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.enrichLimiter == nil || !s.enrichLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := readEnrichAccountID(c)
		if key == "" {
			key = c.ClientIP()
		}

		res, err := s.enrichLimiter.AllowAccount(ctx, key)
		if err != nil {
			logger.FromContext(ctx).Warn("enrich rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

// readEnrichAccountID extracts the account id from a single or batch
// enrichment body and rewinds the body for the handler.
func readEnrichAccountID(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var single struct {
		AccountID string `json:"accountId"`
	}
	if json.Unmarshal(raw, &single) == nil && single.AccountID != "" {
		return single.AccountID
	}

	var batch []struct {
		AccountID string `json:"accountId"`
	}
	if json.Unmarshal(raw, &batch) == nil && len(batch) > 0 {
		return batch[0].AccountID
	}
	return ""
}
