package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RetentionYears is how long audit entries are kept, independent of any
// other retention policy. Entries inside the window are never updated
// or deleted.
const RetentionYears = 7

type ActorType string

const (
	ActorTypeSystem   ActorType = "system"
	ActorTypeUser     ActorType = "user"
	ActorTypeAPIKey   ActorType = "api_key"
	ActorTypeExternal ActorType = "external"
)

// Entry is one append-only record of a mutating action, including
// rejected attempts that touch money.
type Entry struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType   string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID     *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action      string            `gorm:"type:text;not null;index" json:"action"`
	TargetTable string            `gorm:"type:text;not null;index" json:"target_table"`
	RecordID    *string           `gorm:"type:text;index" json:"record_id,omitempty"`
	OldValues   datatypes.JSONMap `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues   datatypes.JSONMap `gorm:"type:jsonb" json:"new_values,omitempty"`
	Outcome     string            `gorm:"type:text;not null;default:'success'" json:"outcome"`
	RequestID   *string           `gorm:"type:text" json:"request_id,omitempty"`
	IPAddress   *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent   *string           `gorm:"type:text" json:"user_agent,omitempty"`
	// Timestamps are stored both ways for query convenience.
	OccurredAtUnix int64     `gorm:"not null" json:"occurred_at_unix"`
	OccurredAtISO  string    `gorm:"type:text;not null" json:"occurred_at_iso"`
	IntegrityHash  string    `gorm:"type:text;not null" json:"integrity_hash"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "audit_log_entries" }

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action      string
	TargetTable string
	RecordID    string
	ActorType   string
	Outcome     string
	StartAt     *time.Time
	EndAt       *time.Time
	Cursor      *Cursor
	Limit       int
}
