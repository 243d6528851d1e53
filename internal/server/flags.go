package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	anomalydomain "github.com/aceylabs/finledger/internal/anomaly/domain"
)

func (s *Server) ListFlags(c *gin.Context) {
	filter := anomalydomain.ListFilter{
		Status:           anomalydomain.FlagStatus(strings.TrimSpace(c.Query("status"))),
		Severity:         anomalydomain.Severity(strings.TrimSpace(c.Query("severity"))),
		AffectedEntityID: strings.TrimSpace(c.Query("entity_id")),
	}
	flags, err := s.anomalySvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

func (s *Server) GetFlag(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	flag, err := s.anomalySvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}

func (s *Server) ResolveFlag(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req anomalydomain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	flag, err := s.anomalySvc.Resolve(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}
