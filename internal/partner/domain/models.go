package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PartnerStatus string

const (
	PartnerStatusActive    PartnerStatus = "active"
	PartnerStatusInactive  PartnerStatus = "inactive"
	PartnerStatusSuspended PartnerStatus = "suspended"
)

// PartnerProfile holds the commercial terms applied at calculation
// time. Changing terms affects future ledgers only; existing ledgers
// keep the terms they were computed with.
type PartnerProfile struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name             string        `gorm:"type:text;not null" json:"name"`
	Email            string        `gorm:"type:text;not null;uniqueIndex:ux_partner_profiles_email" json:"email"`
	RevenueSharePct  int64         `gorm:"not null" json:"revenue_share_pct"`
	MinimumPayout    int64         `gorm:"not null" json:"minimum_payout"`
	Currency         string        `gorm:"type:text;not null" json:"currency"`
	Status           PartnerStatus `gorm:"type:text;not null;index" json:"status"`
	PayoutMethod     string        `gorm:"type:text" json:"payout_method,omitempty"`
	PayoutReference  string        `gorm:"type:text" json:"payout_reference,omitempty"`
	ContractStartsAt *time.Time    `json:"contract_starts_at,omitempty"`
	ContractEndsAt   *time.Time    `json:"contract_ends_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PartnerProfile) TableName() string { return "partner_profiles" }

func (s PartnerStatus) Valid() bool {
	switch s {
	case PartnerStatusActive, PartnerStatusInactive, PartnerStatusSuspended:
		return true
	default:
		return false
	}
}

// Payable reports whether ledgers computed for this partner may enter
// a payout batch.
func (p PartnerProfile) Payable() bool {
	return p.Status == PartnerStatusActive
}
