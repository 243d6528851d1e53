package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordEventRequest struct {
	Type             string `json:"type"`
	Category         string `json:"category"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	PartnerID        string `json:"partner_id,omitempty"`
	OccurredAt       string `json:"occurred_at,omitempty"` // RFC3339; defaults to now
	Description      string `json:"description,omitempty"`
	SourceSystem     string `json:"source_system"`
	ReferenceID      string `json:"reference_id"`
	Status           string `json:"status,omitempty"` // defaults to confirmed
}

type RecordAdjustmentRequest struct {
	AdjustsEventID   string `json:"adjusts_event_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Category         string `json:"category,omitempty"`
	Description      string `json:"description,omitempty"`
	SourceSystem     string `json:"source_system"`
	ReferenceID      string `json:"reference_id"`
}

type VerifyResult struct {
	EventID      snowflake.ID `json:"event_id"`
	Intact       bool         `json:"intact"`
	StoredHash   string       `json:"stored_hash"`
	ComputedHash string       `json:"computed_hash"`
}

type ListFilter struct {
	PartnerID *snowflake.ID
	Month     string
	Status    EventStatus
	Type      EventType
	Limit     int
}

type Service interface {
	// RecordEvent appends one event. The (sourceSystem, referenceID)
	// pair dedupes retries from external producers.
	RecordEvent(ctx context.Context, req RecordEventRequest) (*FinancialEvent, error)
	// RecordAdjustment appends a compensating adjustment referencing an
	// existing event. This is the only sanctioned correction path.
	RecordAdjustment(ctx context.Context, req RecordAdjustmentRequest) (*FinancialEvent, error)
	// VerifyIntegrity recomputes the stored hash and compares.
	VerifyIntegrity(ctx context.Context, eventID snowflake.ID) (*VerifyResult, error)
	GetByID(ctx context.Context, eventID snowflake.ID) (*FinancialEvent, error)
	List(ctx context.Context, filter ListFilter) ([]FinancialEvent, error)
}

type Repository interface {
	// Insert appends the event; returns ErrDuplicateReference when the
	// (source_system, reference_id) pair already exists. There is no
	// update or delete: the store is append-only by construction.
	Insert(ctx context.Context, db *gorm.DB, event *FinancialEvent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FinancialEvent, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]FinancialEvent, error)
	// ConfirmedForPartnerMonth returns confirmed events for one
	// partner and settlement month, ordered by occurrence.
	ConfirmedForPartnerMonth(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, month string) ([]FinancialEvent, error)
	// ActivePartnerIDsForMonth lists partners with at least one
	// confirmed event in the month.
	ActivePartnerIDsForMonth(ctx context.Context, db *gorm.DB, month string) ([]snowflake.ID, error)
}

var (
	ErrInvalidType          = errors.New("invalid_type")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrNegativeRevenue      = errors.New("negative_revenue_event")
	ErrUnsupportedCurrency  = errors.New("unsupported_currency")
	ErrInvalidPartnerID     = errors.New("invalid_partner_id")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidSourceSystem  = errors.New("invalid_source_system")
	ErrInvalidReferenceID   = errors.New("invalid_reference_id")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidCategory      = errors.New("invalid_category")
	ErrDuplicateReference   = errors.New("duplicate_reference")
	ErrNotFound             = errors.New("not_found")
	ErrAdjustedEventMissing = errors.New("adjusted_event_not_found")
)

// MonthOf formats a timestamp as a settlement month (YYYY-MM, UTC).
func MonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
