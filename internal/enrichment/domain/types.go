package domain

import (
	"context"
	"time"
)

// Transaction is one caller-supplied transaction to enrich. Date is a
// calendar date in yyyy-mm-dd form; MerchantName is an optional hint and
// an absent hint keys the merchant cache identically to an empty string.
type Transaction struct {
	Description  string  `json:"description" binding:"required"`
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	Date         string  `json:"date" binding:"required,datetime=2006-01-02"`
	MerchantName *string `json:"merchantName,omitempty"`
}

// EnrichmentRequest is one logical enrichment request. Transaction order
// is significant: results preserve it.
type EnrichmentRequest struct {
	AccountID    string        `json:"accountId" binding:"required"`
	Transactions []Transaction `json:"transactions" binding:"required,min=1,dive"`
}

// EnrichedTransaction is the public shape of one enriched transaction.
// TransactionID is the provider's id for the transaction, carried through
// from the cached enrichment payload.
type EnrichedTransaction struct {
	TransactionID string         `json:"transactionId"`
	MerchantID    string         `json:"merchantId"`
	Category      string         `json:"category,omitempty"`
	MerchantName  string         `json:"merchantName,omitempty"`
	LogoURL       string         `json:"logoUrl,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EnrichmentResult is the outcome of one logical request. Provider-side
// failures are encoded in Status and ErrorMessage, never raised as errors.
type EnrichmentResult struct {
	RequestID            string                `json:"requestId"`
	EnrichedTransactions []EnrichedTransaction `json:"enrichedTransactions"`
	ProcessedAt          time.Time             `json:"processedAt"`
	Status               string                `json:"status"`
	ErrorMessage         string                `json:"errorMessage,omitempty"`
}

// Service orchestrates enrichment: cache-aside merchant lookups, the
// resilient provider call for misses, and the audit lifecycle.
type Service interface {
	// Enrich processes one request. Provider failures come back as a
	// FAILED result; a returned error means the request was not accepted
	// into the audit trail.
	Enrich(ctx context.Context, req EnrichmentRequest) (*EnrichmentResult, error)

	// EnrichBatch processes requests concurrently and independently. The
	// returned slice matches the input order; one item's failure never
	// affects another's outcome.
	EnrichBatch(ctx context.Context, reqs []EnrichmentRequest) ([]EnrichmentResult, error)

	// GetByID reconstructs a past result from the audit record and the
	// merchant cache. It returns nil when the id is unknown and never
	// calls the provider.
	GetByID(ctx context.Context, requestID string) (*EnrichmentResult, error)
}
