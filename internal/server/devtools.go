package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
)

// devResetTables are cleared in dependency order so foreign keys on the
// payout side never dangle mid-reset.
var devResetTables = []string{
	"financial_flags",
	"monthly_ledgers",
	"payout_batches",
	"financial_events",
	"partner_profiles",
}

// DevReset wipes domain data for local development. Production
// environments never expose it; audit entries and api keys survive so
// the trail of the reset itself is kept.
func (s *Server) DevReset(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, ErrForbidden)
		return
	}

	ctx := c.Request.Context()
	for _, table := range devResetTables {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if err := s.auditSvc.Record(ctx, auditdomain.Change{
		Action:      "dev.reset",
		TargetTable: "all",
	}); err != nil {
		s.log.Warn("audit record failed for dev reset", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset", "tables": devResetTables})
}
