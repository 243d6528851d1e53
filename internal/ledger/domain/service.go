package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PartnerFailure captures one partner's calculation error without
// aborting the rest of the run.
type PartnerFailure struct {
	PartnerID snowflake.ID `json:"partner_id"`
	Reason    string       `json:"reason"`
}

// RunSummary reports one calculation run across all active partners.
type RunSummary struct {
	Month           string           `json:"month"`
	LedgersComputed int              `json:"ledgers_computed"`
	LedgersSkipped  int              `json:"ledgers_skipped"`
	FlagsRaised     int              `json:"flags_raised"`
	Failures        []PartnerFailure `json:"failures,omitempty"`
	DurationMillis  int64            `json:"duration_millis"`
}

type ListFilter struct {
	Month        string
	PartnerID    *snowflake.ID
	PayoutStatus PayoutStatus
	BatchID      *snowflake.ID
	Limit        int
}

// MonthlyRevenue is one month's gross revenue for a partner, used as
// the anomaly baseline.
type MonthlyRevenue struct {
	Month        string `json:"month"`
	GrossRevenue int64  `json:"gross_revenue"`
}

type Service interface {
	// CalculateMonth settles every active partner for the month. One
	// partner's failure does not abort the others; the summary carries
	// per-partner outcomes. A second concurrent run for the same month
	// fails with ErrAlreadyCalculating.
	CalculateMonth(ctx context.Context, month string) (*RunSummary, error)
	GetByID(ctx context.Context, id string) (*MonthlyLedger, error)
	List(ctx context.Context, filter ListFilter) ([]MonthlyLedger, error)
}

type Repository interface {
	// Upsert writes the ledger row keyed by its deterministic id.
	Upsert(ctx context.Context, db *gorm.DB, ledger *MonthlyLedger) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*MonthlyLedger, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]MonthlyLedger, error)
	// EligibleForMonth returns pending, unbatched, positive-payout
	// ledgers ordered by id for deterministic batch hashing.
	EligibleForMonth(ctx context.Context, db *gorm.DB, month string) ([]MonthlyLedger, error)
	// RevenueHistory returns up to lookback months of gross revenue
	// strictly before the given month, most recent first.
	RevenueHistory(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, beforeMonth string, lookback int) ([]MonthlyRevenue, error)
	// AttachToBatch stamps the batch id and flips pending ledgers in
	// one guarded update; returns rows affected.
	AttachToBatch(ctx context.Context, db *gorm.DB, ledgerIDs []string, batchID snowflake.ID) (int64, error)
	// TransitionForBatch moves every ledger in the batch from one
	// payout status to another; returns rows affected.
	TransitionForBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID, from, to PayoutStatus) (int64, error)
	// DetachFromBatch clears the batch id and moves the ledgers to the
	// given status, used when a batch is rejected.
	DetachFromBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID, to PayoutStatus) (int64, error)
	// PendingPayoutTotal sums payout amounts across pending ledgers.
	PendingPayoutTotal(ctx context.Context, db *gorm.DB) (int64, error)
}

var (
	ErrInvalidMonth       = errors.New("invalid_month")
	ErrNotFound           = errors.New("ledger_not_found")
	ErrAlreadyCalculating = errors.New("already_calculating")
)
