package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
)

type calculateRequest struct {
	Month string `json:"month"`
}

func (s *Server) CalculateLedgers(c *gin.Context) {
	var req calculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.ledgerSvc.CalculateMonth(c.Request.Context(), strings.TrimSpace(req.Month))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListLedgers(c *gin.Context) {
	filter := ledgerdomain.ListFilter{
		Month:        strings.TrimSpace(c.Query("month")),
		PayoutStatus: ledgerdomain.PayoutStatus(strings.TrimSpace(c.Query("payout_status"))),
	}
	if raw := strings.TrimSpace(c.Query("partner_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.PartnerID = &id
	}

	ledgers, err := s.ledgerSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledgers": ledgers})
}

func (s *Server) GetLedger(c *gin.Context) {
	ledger, err := s.ledgerSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}
