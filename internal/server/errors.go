package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	anomalydomain "github.com/aceylabs/finledger/internal/anomaly/domain"
	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/authorization"
	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
	exportdomain "github.com/aceylabs/finledger/internal/export/domain"
	identitydomain "github.com/aceylabs/finledger/internal/identity/domain"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "validation error",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identitydomain.ErrInvalidAPIKey),
		errors.Is(err, identitydomain.ErrKeyExpired),
		errors.Is(err, identitydomain.ErrKeyRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, payoutdomain.ErrUnauthorizedApprover):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    err.Error(),
			Message: "forbidden",
		}
	case errors.Is(err, eventdomain.ErrDuplicateReference),
		errors.Is(err, partnerdomain.ErrDuplicateEmail),
		errors.Is(err, payoutdomain.ErrInvalidState),
		errors.Is(err, ledgerdomain.ErrAlreadyCalculating),
		errors.Is(err, anomalydomain.ErrFlagAlreadyFinalized):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: "conflict",
		}
	case errors.Is(err, payoutdomain.ErrNoEligibleLedgers):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "business_condition",
			Code:    err.Error(),
			Message: "no ledgers are eligible for a payout batch this month",
		}
	case errors.Is(err, exportdomain.ErrBatchNotApproved):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "business_condition",
			Code:    err.Error(),
			Message: "batch must be approved before export",
		}
	case errors.Is(err, exportdomain.ErrBatchDrift):
		return http.StatusConflict, errorPayload{
			Type:    "integrity_error",
			Code:    err.Error(),
			Message: "batch contents no longer match the approved hash",
		}
	case errors.Is(err, eventdomain.ErrImmutableEvent):
		return http.StatusInternalServerError, errorPayload{
			Type:    "immutability_violation",
			Code:    err.Error(),
			Message: "append-only record mutation attempted",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, eventdomain.ErrInvalidType),
		errors.Is(err, eventdomain.ErrInvalidAmount),
		errors.Is(err, eventdomain.ErrNegativeRevenue),
		errors.Is(err, eventdomain.ErrUnsupportedCurrency),
		errors.Is(err, eventdomain.ErrInvalidPartnerID),
		errors.Is(err, eventdomain.ErrInvalidOccurredAt),
		errors.Is(err, eventdomain.ErrInvalidSourceSystem),
		errors.Is(err, eventdomain.ErrInvalidReferenceID),
		errors.Is(err, eventdomain.ErrInvalidStatus),
		errors.Is(err, eventdomain.ErrInvalidCategory),
		errors.Is(err, eventdomain.ErrAdjustedEventMissing),
		errors.Is(err, partnerdomain.ErrInvalidName),
		errors.Is(err, partnerdomain.ErrInvalidEmail),
		errors.Is(err, partnerdomain.ErrInvalidSharePct),
		errors.Is(err, partnerdomain.ErrInvalidMinPayout),
		errors.Is(err, partnerdomain.ErrInvalidCurrency),
		errors.Is(err, partnerdomain.ErrInvalidStatus),
		errors.Is(err, ledgerdomain.ErrInvalidMonth),
		errors.Is(err, payoutdomain.ErrInvalidMonth),
		errors.Is(err, payoutdomain.ErrRejectionReason),
		errors.Is(err, anomalydomain.ErrInvalidResolution),
		errors.Is(err, exportdomain.ErrUnknownFormat),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, identitydomain.ErrInvalidName),
		errors.Is(err, identitydomain.ErrInvalidRole),
		errors.Is(err, identitydomain.ErrRoleNotAllowed),
		errors.Is(err, identitydomain.ErrInvalidKeyID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, eventdomain.ErrNotFound),
		errors.Is(err, partnerdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, anomalydomain.ErrNotFound),
		errors.Is(err, identitydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger an error type and code
// without re-running the full response mapping.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	errorType := payload.Type
	code := payload.Code
	if code == "" {
		code = strings.ToLower(http.StatusText(status))
	}
	return errorType, code
}
