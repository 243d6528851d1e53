package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	RevenueSharePct int64  `json:"revenue_share_pct"`
	MinimumPayout   int64  `json:"minimum_payout"`
	Currency        string `json:"currency"`
	PayoutMethod    string `json:"payout_method,omitempty"`
	PayoutReference string `json:"payout_reference,omitempty"`
}

// UpdateRequest carries the mutable commercial terms. Nil fields are
// left unchanged.
type UpdateRequest struct {
	Name            *string `json:"name,omitempty"`
	Email           *string `json:"email,omitempty"`
	RevenueSharePct *int64  `json:"revenue_share_pct,omitempty"`
	MinimumPayout   *int64  `json:"minimum_payout,omitempty"`
	Status          *string `json:"status,omitempty"`
	PayoutMethod    *string `json:"payout_method,omitempty"`
	PayoutReference *string `json:"payout_reference,omitempty"`
}

type ListFilter struct {
	Status PartnerStatus
	Limit  int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*PartnerProfile, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*PartnerProfile, error)
	GetByID(ctx context.Context, id snowflake.ID) (*PartnerProfile, error)
	List(ctx context.Context, filter ListFilter) ([]PartnerProfile, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, partner *PartnerProfile) error
	Update(ctx context.Context, db *gorm.DB, partner *PartnerProfile) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PartnerProfile, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PartnerProfile, error)
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidSharePct  = errors.New("invalid_revenue_share_pct")
	ErrInvalidMinPayout = errors.New("invalid_minimum_payout")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrDuplicateEmail   = errors.New("duplicate_email")
	ErrNotFound         = errors.New("partner_not_found")
)
