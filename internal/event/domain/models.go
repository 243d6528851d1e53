package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EventType string

const (
	EventTypeRevenue    EventType = "revenue"
	EventTypeExpense    EventType = "expense"
	EventTypeAdjustment EventType = "adjustment"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusRejected  EventStatus = "rejected"
)

// FinancialEvent is an immutable fact of money earned or spent.
// Corrections are new compensating events, never edits.
type FinancialEvent struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	Type             EventType     `gorm:"type:text;not null;index" json:"type"`
	Category         string        `gorm:"type:text;not null" json:"category"`
	AmountMinorUnits int64         `gorm:"not null" json:"amount_minor_units"`
	Currency         string        `gorm:"type:text;not null" json:"currency"`
	PartnerID        *snowflake.ID `gorm:"index" json:"partner_id,omitempty"`
	// Month is derived from OccurredAt and indexed for settlement reads.
	Month          string      `gorm:"type:text;not null;index" json:"month"`
	OccurredAt     time.Time   `gorm:"not null" json:"occurred_at"`
	OccurredAtUnix int64       `gorm:"not null" json:"occurred_at_unix"`
	OccurredDate   string      `gorm:"type:text;not null" json:"occurred_date"`
	Description    string      `gorm:"type:text" json:"description"`
	SourceSystem   string      `gorm:"type:text;not null;uniqueIndex:ux_financial_events_source_ref,priority:1" json:"source_system"`
	ReferenceID    string      `gorm:"type:text;not null;uniqueIndex:ux_financial_events_source_ref,priority:2" json:"reference_id"`
	Status         EventStatus `gorm:"type:text;not null;index" json:"status"`
	// AdjustsEventID links a compensating adjustment to the event it corrects.
	AdjustsEventID *snowflake.ID `gorm:"index" json:"adjusts_event_id,omitempty"`
	IntegrityHash  string        `gorm:"type:text;not null" json:"integrity_hash"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (FinancialEvent) TableName() string { return "financial_events" }

// BeforeUpdate blocks any ORM update path; events are append-only.
func (FinancialEvent) BeforeUpdate(*gorm.DB) error {
	return ErrImmutableEvent
}

// BeforeDelete blocks any ORM delete path; events are retained for audit.
func (FinancialEvent) BeforeDelete(*gorm.DB) error {
	return ErrImmutableEvent
}

var (
	ErrImmutableEvent = errors.New("immutability_violation")
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeRevenue, EventTypeExpense, EventTypeAdjustment:
		return true
	default:
		return false
	}
}

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusConfirmed, EventStatusRejected:
		return true
	default:
		return false
	}
}
