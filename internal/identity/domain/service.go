package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	// Create mints a new key with the given role; the raw secret is
	// returned exactly once.
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	// Resolve authenticates a raw key and returns its principal.
	Resolve(ctx context.Context, rawKey string) (*Principal, error)
	Revoke(ctx context.Context, keyID string) error
	List(ctx context.Context) ([]Response, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB) ([]APIKey, error)
	MarkUsed(ctx context.Context, db *gorm.DB, id int64, at time.Time) error
	Deactivate(ctx context.Context, db *gorm.DB, keyID string) error
}

type CreateRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type Response struct {
	KeyID      string     `json:"key_id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrInvalidKeyID   = errors.New("invalid_key_id")
	ErrInvalidAPIKey  = errors.New("invalid_api_key")
	ErrKeyExpired     = errors.New("api_key_expired")
	ErrKeyRevoked     = errors.New("api_key_revoked")
	ErrNotFound       = errors.New("not_found")
	ErrRoleNotAllowed = errors.New("role_not_allowed")
)
