package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey stores hashed API credentials with an assigned role. The raw
// secret is shown once at creation and only its hash is persisted.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	KeyID      string         `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Name       string         `gorm:"type:text;not null"`
	Role       string         `gorm:"type:text;not null"`
	Scopes     pq.StringArray `gorm:"type:text[]"`
	KeyHash    string         `gorm:"column:key_hash;type:text;not null;index"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
	ExpiresAt  *time.Time     `gorm:"column:expires_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Principal is an authenticated caller resolved from a credential.
type Principal struct {
	KeyID string
	Name  string
	Role  string
}

// Subject is the authorization subject for this principal.
func (p Principal) Subject() string { return "api_key:" + p.KeyID }

// HashAPIKey hashes the raw API key using the same strategy as key creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
