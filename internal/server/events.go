package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
)

func (s *Server) RecordEvent(c *gin.Context) {
	var req eventdomain.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.SourceSystem == "" {
		req.SourceSystem = strings.TrimSpace(c.GetHeader("X-Source-System"))
	}

	event, err := s.eventSvc.RecordEvent(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (s *Server) RecordAdjustment(c *gin.Context) {
	var req eventdomain.RecordAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.SourceSystem == "" {
		req.SourceSystem = strings.TrimSpace(c.GetHeader("X-Source-System"))
	}

	event, err := s.eventSvc.RecordAdjustment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (s *Server) ListEvents(c *gin.Context) {
	filter := eventdomain.ListFilter{
		Month:  strings.TrimSpace(c.Query("month")),
		Status: eventdomain.EventStatus(strings.TrimSpace(c.Query("status"))),
		Type:   eventdomain.EventType(strings.TrimSpace(c.Query("type"))),
	}
	if raw := strings.TrimSpace(c.Query("partner_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, eventdomain.ErrInvalidPartnerID)
			return
		}
		filter.PartnerID = &id
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	events, err := s.eventSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) GetEvent(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	event, err := s.eventSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) VerifyEvent(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	result, err := s.eventSvc.VerifyIntegrity(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
