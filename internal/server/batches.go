package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	exportdomain "github.com/aceylabs/finledger/internal/export/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

func (s *Server) CreateBatch(c *gin.Context) {
	var req payoutdomain.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	batch, err := s.batchSvc.CreateBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (s *Server) ApproveBatch(c *gin.Context) {
	id, ok := s.batchID(c)
	if !ok {
		return
	}
	batch, err := s.batchSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) RejectBatch(c *gin.Context) {
	id, ok := s.batchID(c)
	if !ok {
		return
	}

	var req payoutdomain.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, payoutdomain.ErrRejectionReason)
		return
	}

	batch, err := s.batchSvc.Reject(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) MarkBatchProcessing(c *gin.Context) {
	id, ok := s.batchID(c)
	if !ok {
		return
	}
	batch, err := s.batchSvc.MarkProcessing(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) ConfirmBatchCompleted(c *gin.Context) {
	id, ok := s.batchID(c)
	if !ok {
		return
	}
	batch, err := s.batchSvc.ConfirmCompleted(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) ListBatches(c *gin.Context) {
	filter := payoutdomain.ListFilter{
		Month:  strings.TrimSpace(c.Query("month")),
		Status: payoutdomain.BatchStatus(strings.TrimSpace(c.Query("status"))),
	}
	batches, err := s.batchSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (s *Server) GetBatch(c *gin.Context) {
	id, ok := s.batchID(c)
	if !ok {
		return
	}
	batch, err := s.batchSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ExportBatch streams the payment-instruction document. The filename
// is derived from the batch id, so repeated downloads of an unchanged
// batch are the same file.
func (s *Server) ExportBatch(c *gin.Context) {
	id, ok := s.batchID(c)
	if !ok {
		return
	}
	format, err := exportdomain.ParseFormat(strings.TrimSpace(c.Query("format")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.exportSvc.Generate(c.Request.Context(), id, format)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Bytes)
}

func (s *Server) batchID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return id, true
}
