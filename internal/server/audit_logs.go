package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	var req auditdomain.ListRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Action = strings.TrimSpace(c.Query("action"))
	req.TargetTable = strings.TrimSpace(c.Query("target_table"))
	req.RecordID = strings.TrimSpace(c.Query("record_id"))
	req.ActorType = strings.TrimSpace(c.Query("actor_type"))
	req.Outcome = strings.TrimSpace(c.Query("outcome"))

	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, auditdomain.ErrInvalidTimeRange)
			return
		}
		req.StartAt = &t
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, auditdomain.ErrInvalidTimeRange)
			return
		}
		req.EndAt = &t
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
