package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	identitydomain "github.com/aceylabs/finledger/internal/identity/domain"
)

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req identitydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	secret, err := s.identitySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, secret)
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.identitySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	if err := s.identitySvc.Revoke(c.Request.Context(), c.Param("keyId")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
