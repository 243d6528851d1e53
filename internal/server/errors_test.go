package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
	exportdomain "github.com/aceylabs/finledger/internal/export/domain"
	identitydomain "github.com/aceylabs/finledger/internal/identity/domain"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{eventdomain.ErrInvalidType, http.StatusBadRequest, "validation_error"},
		{partnerdomain.ErrInvalidSharePct, http.StatusBadRequest, "validation_error"},
		{payoutdomain.ErrRejectionReason, http.StatusBadRequest, "validation_error"},
		{identitydomain.ErrInvalidAPIKey, http.StatusUnauthorized, "unauthorized"},
		{identitydomain.ErrKeyRevoked, http.StatusUnauthorized, "unauthorized"},
		{payoutdomain.ErrUnauthorizedApprover, http.StatusForbidden, "forbidden"},
		{eventdomain.ErrDuplicateReference, http.StatusConflict, "conflict"},
		{payoutdomain.ErrInvalidState, http.StatusConflict, "conflict"},
		{ledgerdomain.ErrAlreadyCalculating, http.StatusConflict, "conflict"},
		{payoutdomain.ErrNoEligibleLedgers, http.StatusUnprocessableEntity, "business_condition"},
		{exportdomain.ErrBatchNotApproved, http.StatusUnprocessableEntity, "business_condition"},
		{exportdomain.ErrBatchDrift, http.StatusConflict, "integrity_error"},
		{eventdomain.ErrImmutableEvent, http.StatusInternalServerError, "immutability_violation"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{ledgerdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.New("something unexpected"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.wantStatus, status, tc.err.Error())
		assert.Equal(t, tc.wantType, payload.Type, tc.err.Error())
	}
}

func TestErrorHandlingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, payoutdomain.ErrInvalidState)
	})
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"conflict"`)
	assert.Contains(t, w.Body.String(), `"code":"invalid_state"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	errorType, code := classifyErrorForLog(eventdomain.ErrDuplicateReference)
	assert.Equal(t, "conflict", errorType)
	assert.Equal(t, "duplicate_reference", code)

	errorType, code = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal_error", errorType)
	assert.Equal(t, "internal server error", code)
}
