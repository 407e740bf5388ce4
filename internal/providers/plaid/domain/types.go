// Package domain defines the wire contract of the external enrichment
// provider and the typed error its client surfaces.
package domain

import (
	"context"
	"fmt"
)

// Transaction is one transaction sent to the provider for enrichment.
type Transaction struct {
	Description  string  `json:"description"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	MerchantName *string `json:"merchant_name,omitempty"`
}

// EnrichRequest is the provider request body. Credentials travel in the
// body per the provider contract.
type EnrichRequest struct {
	ClientID     string        `json:"client_id"`
	Secret       string        `json:"secret"`
	AccountID    string        `json:"account_id"`
	Transactions []Transaction `json:"transactions"`
}

// EnrichedTransaction is one per-transaction provider result. The provider
// guarantees one result per input transaction, in input order.
type EnrichedTransaction struct {
	ID                 string         `json:"id"`
	Category           string         `json:"category"`
	CategoryID         string         `json:"category_id"`
	MerchantName       string         `json:"merchant_name"`
	LogoURL            string         `json:"logo_url"`
	Website            string         `json:"website"`
	ConfidenceLevel    string         `json:"confidence_level"`
	EnrichmentMetadata map[string]any `json:"enrichment_metadata,omitempty"`
}

// EnrichResponse is the provider response body.
type EnrichResponse struct {
	EnrichedTransactions []EnrichedTransaction `json:"enriched_transactions"`
	RequestID            string                `json:"request_id"`
}

// ErrorKind classifies a provider call failure. The kind drives both the
// retry decision and whether the failure counts against the breaker.
type ErrorKind string

const (
	// KindTransport covers connection-level failures before a response.
	KindTransport ErrorKind = "transport"
	// KindTimeout covers deadline expiry of the underlying call.
	KindTimeout ErrorKind = "timeout"
	// KindHTTP covers non-2xx responses; StatusCode is set.
	KindHTTP ErrorKind = "http"
	// KindDecode covers undecodable or malformed response bodies.
	KindDecode ErrorKind = "decode"
	// KindCapacity means the bulkhead wait expired before a slot freed.
	KindCapacity ErrorKind = "capacity"
	// KindCircuitOpen means the breaker rejected the call outright.
	KindCircuitOpen ErrorKind = "circuit_open"
)

// APIError is the normalized failure for a provider call. StatusCode and
// ErrorCode are zero-valued when the failure happened before a response.
type APIError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	ErrorCode  string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		if e.ErrorCode != "" {
			return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
		}
		return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed: connection
// failures, timeouts and 5xx responses qualify. Client errors, decode
// failures, capacity rejections and open circuits do not.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindTimeout:
		return true
	case KindHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// CountsAsBreakerFailure reports whether the failure should count against
// the circuit breaker's failure rate. It matches Retryable today: 4xx is
// the caller's fault, not a sign of provider degradation.
func (e *APIError) CountsAsBreakerFailure() bool {
	return e.Retryable()
}

// Client calls the external enrichment provider for transactions that
// missed the merchant cache.
type Client interface {
	// Enrich submits the ordered transaction list and returns one result
	// per transaction in the same order. Failures come back as *APIError.
	Enrich(ctx context.Context, accountID string, transactions []Transaction) (*EnrichResponse, error)
}
