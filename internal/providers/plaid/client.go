// Package plaid implements the resilient client for the external
// transaction enrichment provider. Every call runs through the same
// pipeline, outermost first: bulkhead, retry, circuit breaker, HTTP call.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/smallbiznis/enrich/internal/clock"
	"github.com/smallbiznis/enrich/internal/config"
	obslogger "github.com/smallbiznis/enrich/internal/observability/logger"
	"github.com/smallbiznis/enrich/internal/observability/metrics"
	"github.com/smallbiznis/enrich/internal/providers/plaid/domain"
	"github.com/smallbiznis/enrich/internal/resilience"
	"go.uber.org/zap"
)

const maxErrorBodyBytes = 4 << 10

type client struct {
	holder  *config.ProviderConfigHolder
	httpc   *http.Client
	metrics *metrics.Metrics

	bulkhead *resilience.Bulkhead
	retry    *resilience.Retry
	breaker  *resilience.CircuitBreaker
}

// NewClient builds the provider client. The resilience components are
// sized from the config snapshot taken at construction; credentials and
// endpoint are read per call so a config reload takes effect live.
func NewClient(holder *config.ProviderConfigHolder, clk clock.Clock, m *metrics.Metrics, log *zap.Logger) domain.Client {
	cfg := holder.Current()

	c := &client{
		holder:  holder,
		httpc:   &http.Client{},
		metrics: m,
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: int64(cfg.Bulkhead.MaxConcurrent),
			MaxWait:       time.Duration(cfg.Bulkhead.MaxWaitSeconds) * time.Second,
		}),
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			WindowSize:           cfg.Breaker.WindowSize,
			MinimumCalls:         cfg.Breaker.MinimumCalls,
			FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
			OpenFor:              time.Duration(cfg.Breaker.OpenStateSeconds) * time.Second,
			HalfOpenProbes:       cfg.Breaker.HalfOpenProbes,
		}, clk),
	}

	c.retry = resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffSeconds) * time.Second,
	}, isRetryable, func(attempt int, err error) {
		m.RecordProviderRetry()
		log.Warn("retrying provider call",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})

	c.breaker.OnStateChange(func(from, to resilience.State) {
		m.SetBreakerState(breakerStateValue(to))
		log.Warn("provider circuit breaker state changed",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	})

	return c
}

func (c *client) Enrich(ctx context.Context, accountID string, transactions []domain.Transaction) (*domain.EnrichResponse, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		if errors.Is(err, resilience.ErrCapacityExceeded) {
			c.metrics.RecordProviderCall(string(domain.KindCapacity), 0)
			return nil, &domain.APIError{
				Kind:    domain.KindCapacity,
				Message: "provider call capacity exceeded",
				Err:     err,
			}
		}
		return nil, err
	}
	defer c.bulkhead.Release()

	var resp *domain.EnrichResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			out, callErr := c.call(ctx, accountID, transactions)
			if callErr != nil {
				return callErr
			}
			resp = out
			return nil
		}, countsAsBreakerFailure)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.metrics.RecordProviderCall(string(domain.KindCircuitOpen), 0)
			return nil, &domain.APIError{
				Kind:    domain.KindCircuitOpen,
				Message: "provider circuit open, failing fast",
				Err:     err,
			}
		}
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, &domain.APIError{Kind: domain.KindTransport, Message: err.Error(), Err: err}
	}
	return resp, nil
}

// call performs a single HTTP attempt against the provider.
func (c *client) call(ctx context.Context, accountID string, transactions []domain.Transaction) (*domain.EnrichResponse, error) {
	cfg := c.holder.Current()
	log := obslogger.FromContext(ctx)

	body, err := json.Marshal(domain.EnrichRequest{
		ClientID:     cfg.ClientID,
		Secret:       cfg.Secret,
		AccountID:    accountID,
		Transactions: transactions,
	})
	if err != nil {
		return nil, &domain.APIError{Kind: domain.KindDecode, Message: "encode request: " + err.Error(), Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, cfg.BaseURL+cfg.EnrichEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.APIError{Kind: domain.KindTransport, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		kind := domain.KindTransport
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = domain.KindTimeout
		}
		c.metrics.RecordProviderCall(string(kind), elapsed)
		log.Warn("provider call failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, &domain.APIError{Kind: kind, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeErrorResponse(resp)
		c.metrics.RecordProviderCall(fmt.Sprintf("http_%d", resp.StatusCode), elapsed)
		log.Warn("provider returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", apiErr.ErrorCode),
		)
		return nil, apiErr
	}

	var out domain.EnrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.metrics.RecordProviderCall(string(domain.KindDecode), elapsed)
		return nil, &domain.APIError{Kind: domain.KindDecode, Message: "decode response: " + err.Error(), Err: err}
	}
	if len(out.EnrichedTransactions) != len(transactions) {
		c.metrics.RecordProviderCall(string(domain.KindDecode), elapsed)
		return nil, &domain.APIError{
			Kind:    domain.KindDecode,
			Message: fmt.Sprintf("provider returned %d results for %d transactions", len(out.EnrichedTransactions), len(transactions)),
		}
	}

	c.metrics.RecordProviderCall("success", elapsed)
	return &out, nil
}

// decodeErrorResponse extracts the provider's error code and message from
// a non-2xx body, falling back to the raw body when it is not JSON.
func decodeErrorResponse(resp *http.Response) *domain.APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var body struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	message := http.StatusText(resp.StatusCode)
	var errorCode string
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.ErrorMessage != "" {
			message = body.ErrorMessage
		}
		errorCode = body.ErrorCode
	} else if len(raw) > 0 {
		message = string(raw)
	}

	return &domain.APIError{
		Kind:       domain.KindHTTP,
		Message:    message,
		StatusCode: resp.StatusCode,
		ErrorCode:  errorCode,
	}
}

func isRetryable(err error) bool {
	var apiErr *domain.APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

func countsAsBreakerFailure(err error) bool {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.CountsAsBreakerFailure()
	}
	return true
}

func breakerStateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateOpen:
		return 1
	case resilience.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
