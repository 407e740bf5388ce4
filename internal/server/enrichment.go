package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	enrichmentdomain "github.com/smallbiznis/enrich/internal/enrichment/domain"
)

// EnrichTransactions accepts one enrichment request. Provider-side
// failures are reported inside the result body with a 200, matching the
// orchestrator's failure encoding; only rejected requests get an error
// status.
func (s *Server) EnrichTransactions(c *gin.Context) {
	var req enrichmentdomain.EnrichmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.enrichmentSvc.Enrich(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, result)
}

// EnrichTransactionsBatch accepts a list of enrichment requests and
// returns one result per request, in input order.
func (s *Server) EnrichTransactionsBatch(c *gin.Context) {
	var reqs []enrichmentdomain.EnrichmentRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(reqs) == 0 {
		AbortWithError(c, newValidationError("requests", "empty_batch", "at least one request is required"))
		return
	}

	results, err := s.enrichmentSvc.EnrichBatch(c.Request.Context(), reqs)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, results)
}

// GetEnrichmentByID returns the stored outcome for a request id, with
// SUCCESS payloads reconstructed from the merchant cache.
func (s *Server) GetEnrichmentByID(c *gin.Context) {
	requestID, err := s.genID.Normalize(c.Param("requestId"))
	if err != nil {
		AbortWithError(c, newValidationError("requestId", "invalid_identifier_format", "request id must be a valid identifier"))
		return
	}

	result, err := s.enrichmentSvc.GetByID(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}
	if result == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEnrichmentStats reports audit record counts per lifecycle status.
func (s *Server) GetEnrichmentStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats := gin.H{}
	for _, status := range []string{
		enrichmentdomain.StatusPending,
		enrichmentdomain.StatusSuccess,
		enrichmentdomain.StatusFailed,
	} {
		count, err := s.auditRepo.CountByStatus(ctx, s.db, status)
		if err != nil {
			AbortWithError(c, ErrInternal)
			return
		}
		stats[status] = count
	}

	c.JSON(http.StatusOK, stats)
}
