package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusApproved   BatchStatus = "approved"
	BatchStatusRejected   BatchStatus = "rejected"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
)

// PayoutBatch groups eligible ledgers for one human-approved
// settlement run. The engine prepares batches; it never moves money.
type PayoutBatch struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	Month string       `gorm:"type:text;not null;index" json:"month"`
	// ReferenceCode is the operator-facing identifier printed on
	// exports and remittance documents.
	ReferenceCode string      `gorm:"type:text;not null;uniqueIndex:ux_payout_batches_reference" json:"reference_code"`
	Status        BatchStatus `gorm:"type:text;not null;index" json:"status"`
	TotalAmount   int64       `gorm:"not null" json:"total_amount"`
	LedgerCount   int64       `gorm:"not null" json:"ledger_count"`
	Currency      string      `gorm:"type:text;not null" json:"currency"`
	// BatchHash covers constituent ledger ids and amounts so exports
	// can detect drift between approval and generation.
	BatchHash string `gorm:"type:text;not null" json:"batch_hash"`

	RequestedBy     string     `gorm:"type:text;not null" json:"requested_by"`
	ApprovedBy      string     `gorm:"type:text" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      string     `gorm:"type:text" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	CreatedAtUnix int64     `gorm:"not null" json:"created_at_unix"`
	CreatedAtISO  string    `gorm:"type:text;not null" json:"created_at_iso"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PayoutBatch) TableName() string { return "payout_batches" }

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusPending, BatchStatusApproved, BatchStatusRejected,
		BatchStatusProcessing, BatchStatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransition encodes the batch state machine.
func (s BatchStatus) CanTransition(to BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return to == BatchStatusApproved || to == BatchStatusRejected
	case BatchStatusApproved:
		return to == BatchStatusProcessing
	case BatchStatusProcessing:
		return to == BatchStatusCompleted
	default:
		return false
	}
}
