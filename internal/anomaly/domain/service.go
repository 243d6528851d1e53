package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// LedgerSnapshot is the slice of a computed ledger the detector needs.
// The detector depends on values, not on the ledger package, so the
// two packages stay acyclic.
type LedgerSnapshot struct {
	LedgerID     string
	PartnerID    snowflake.ID
	Month        string
	GrossRevenue int64
	NetRevenue   int64
	Expenses     int64
	// RevenueBaseline is the trailing gross revenue per prior month,
	// most recent first. Fewer entries than the lookback is fine.
	RevenueBaseline []int64
}

type ListFilter struct {
	Status           FlagStatus
	Severity         Severity
	AffectedEntityID string
	Limit            int
}

type ResolveRequest struct {
	Status FlagStatus `json:"status"` // resolved or ignored
	Note   string     `json:"note,omitempty"`
}

type Service interface {
	// Inspect runs every detection rule against one computed ledger
	// inside the caller's transaction and persists any flags raised.
	// All rules are evaluated; a single ledger may collect several.
	Inspect(ctx context.Context, tx *gorm.DB, snap LedgerSnapshot) ([]FinancialFlag, error)
	// RaiseManual records an operator- or system-raised flag outside
	// ledger calculation, e.g. a missing partner record.
	RaiseManual(ctx context.Context, tx *gorm.DB, flag FinancialFlag) (*FinancialFlag, error)
	// Resolve closes an active flag as resolved or ignored.
	Resolve(ctx context.Context, id snowflake.ID, req ResolveRequest) (*FinancialFlag, error)
	GetByID(ctx context.Context, id snowflake.ID) (*FinancialFlag, error)
	List(ctx context.Context, filter ListFilter) ([]FinancialFlag, error)
	CountActive(ctx context.Context) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, flag *FinancialFlag) error
	Update(ctx context.Context, db *gorm.DB, flag *FinancialFlag) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FinancialFlag, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]FinancialFlag, error)
	CountByStatus(ctx context.Context, db *gorm.DB, status FlagStatus) (int64, error)
}

var (
	ErrNotFound             = errors.New("flag_not_found")
	ErrInvalidResolution    = errors.New("invalid_resolution_status")
	ErrFlagAlreadyFinalized = errors.New("flag_already_finalized")
)
