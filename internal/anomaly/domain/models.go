package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type FlagType string

const (
	FlagTypeAnomaly    FlagType = "anomaly"
	FlagTypeCompliance FlagType = "compliance"
	FlagTypeThreshold  FlagType = "threshold"
	FlagTypeManual     FlagType = "manual"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type FlagStatus string

const (
	FlagStatusActive   FlagStatus = "active"
	FlagStatusResolved FlagStatus = "resolved"
	FlagStatusIgnored  FlagStatus = "ignored"
)

// Detection rule names, stored on each flag so operators can audit why
// it fired without recomputation.
const (
	RuleRevenueSpike     = "revenue_spike"
	RuleNegativeNet      = "negative_net_revenue"
	RuleHighExpenseRatio = "high_expense_ratio"
	RuleMissingPartner   = "missing_partner_record"
)

// FinancialFlag is an anomaly or compliance note attached to an
// entity. Flags are created by detection and resolved by operators,
// never auto-deleted.
type FinancialFlag struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	FlagType           FlagType     `gorm:"type:text;not null" json:"flag_type"`
	Severity           Severity     `gorm:"type:text;not null;index" json:"severity"`
	AffectedEntityType string       `gorm:"type:text;not null" json:"affected_entity_type"`
	AffectedEntityID   string       `gorm:"type:text;not null;index" json:"affected_entity_id"`
	Status             FlagStatus   `gorm:"type:text;not null;index" json:"status"`
	DetectionRule      string       `gorm:"type:text;not null" json:"detection_rule"`
	Description        string       `gorm:"type:text" json:"description"`
	ActualValue        string       `gorm:"type:text" json:"actual_value"`
	ExpectedValue      string       `gorm:"type:text" json:"expected_value"`
	ResolvedBy         string       `gorm:"type:text" json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time   `json:"resolved_at,omitempty"`
	ResolutionNote     string       `gorm:"type:text" json:"resolution_note,omitempty"`
	RaisedAtUnix       int64        `gorm:"not null" json:"raised_at_unix"`
	RaisedAtISO        string       `gorm:"type:text;not null" json:"raised_at_iso"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (FinancialFlag) TableName() string { return "financial_flags" }

func (s FlagStatus) Valid() bool {
	switch s {
	case FlagStatusActive, FlagStatusResolved, FlagStatusIgnored:
		return true
	default:
		return false
	}
}
