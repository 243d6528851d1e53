package domain

import (
	"context"
	"errors"
	"time"

	"github.com/aceylabs/finledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// Change describes one mutating action to record. Zero-value Old/New
// maps are allowed; Outcome defaults to "success".
type Change struct {
	Action      string
	TargetTable string
	RecordID    string
	OldValues   map[string]any
	NewValues   map[string]any
	Outcome     string
}

type ListRequest struct {
	pagination.Pagination
	Action      string
	TargetTable string
	RecordID    string
	ActorType   string
	Outcome     string
	StartAt     *time.Time
	EndAt       *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

type Service interface {
	// Record appends one entry. Actor identity is taken from context.
	Record(ctx context.Context, change Change) error
	// RecordTx appends one entry inside the caller's transaction so the
	// audit trail commits or rolls back with the mutation it describes.
	RecordTx(ctx context.Context, tx *gorm.DB, change Change) error
	// RecordRejected captures a failed money-touching attempt.
	RecordRejected(ctx context.Context, change Change, cause error) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
