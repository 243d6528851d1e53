package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type PayoutStatus string

const (
	PayoutStatusBelowThreshold PayoutStatus = "below_threshold"
	PayoutStatusPending        PayoutStatus = "pending"
	PayoutStatusApproved       PayoutStatus = "approved"
	PayoutStatusPaid           PayoutStatus = "paid"
	PayoutStatusNeedsReview    PayoutStatus = "needs_review"
)

// MonthlyLedger is the settlement statement for one partner and one
// month. Its primary key is derived from (partner, month) so recomputing
// a month upserts the same row instead of growing duplicates.
type MonthlyLedger struct {
	ID        string       `gorm:"primaryKey;type:text" json:"id"`
	PartnerID snowflake.ID `gorm:"not null;index" json:"partner_id"`
	Month     string       `gorm:"type:text;not null;index" json:"month"`

	GrossRevenue  int64 `gorm:"not null" json:"gross_revenue"`
	TotalExpenses int64 `gorm:"not null" json:"total_expenses"`
	NetRevenue    int64 `gorm:"not null" json:"net_revenue"`
	// SharePct and MinimumPayout capture the partner terms in force at
	// calculation time.
	SharePct      int64 `gorm:"not null" json:"share_pct"`
	MinimumPayout int64 `gorm:"not null" json:"minimum_payout"`
	PayoutAmount  int64 `gorm:"not null" json:"payout_amount"`

	Currency     string       `gorm:"type:text;not null" json:"currency"`
	PayoutStatus PayoutStatus `gorm:"type:text;not null;index" json:"payout_status"`
	EventCount   int64        `gorm:"not null" json:"event_count"`

	BatchID *snowflake.ID `gorm:"index" json:"batch_id,omitempty"`

	// CalculationHash fingerprints the inputs and outputs of the run
	// that produced this row. Recalculating unchanged inputs yields the
	// same hash.
	CalculationHash string `gorm:"type:text;not null" json:"calculation_hash"`
	// CreatedBy is always the system identity; ledgers are never
	// written by a human operator directly.
	CreatedBy        string    `gorm:"type:text;not null" json:"created_by"`
	CalculatedAtUnix int64     `gorm:"not null" json:"calculated_at_unix"`
	CalculatedAtISO  string    `gorm:"type:text;not null" json:"calculated_at_iso"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MonthlyLedger) TableName() string { return "monthly_ledgers" }

// LedgerID derives the deterministic primary key for one partner-month.
func LedgerID(partnerID snowflake.ID, month string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("ledger:%s:%s", partnerID.String(), month)))
	return hex.EncodeToString(sum[:16])
}

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutStatusBelowThreshold, PayoutStatusPending, PayoutStatusApproved,
		PayoutStatusPaid, PayoutStatusNeedsReview:
		return true
	default:
		return false
	}
}

// Eligible reports whether the ledger can join a payout batch.
func (l MonthlyLedger) Eligible() bool {
	return l.PayoutStatus == PayoutStatusPending && l.BatchID == nil && l.PayoutAmount > 0
}
