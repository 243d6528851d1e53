package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthSummary reports the operational numbers a finance operator
// checks before starting a payout run.
func (s *Server) HealthSummary(c *gin.Context) {
	ctx := c.Request.Context()

	pendingBatches, err := s.batchSvc.CountPending(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	activeFlags, err := s.anomalySvc.CountActive(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pendingPayout, err := s.ledgerRepo.PendingPayoutTotal(ctx, s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                     "ok",
		"pending_batches":            pendingBatches,
		"active_flags":               activeFlags,
		"pending_payout_minor_units": pendingPayout,
	})
}
