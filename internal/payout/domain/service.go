package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateBatchRequest struct {
	Month string `json:"month"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ListFilter struct {
	Month  string
	Status BatchStatus
	Limit  int
}

type Service interface {
	// CreateBatch groups every eligible ledger for the month into a
	// pending batch awaiting human approval.
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*PayoutBatch, error)
	// Approve moves pending to approved and cascades the constituent
	// ledgers. First writer wins; a concurrent second call gets
	// ErrInvalidState. The automated system identity is never allowed.
	Approve(ctx context.Context, id snowflake.ID) (*PayoutBatch, error)
	// Reject moves pending to rejected with a required reason; the
	// ledgers go to needs_review instead of silently reverting.
	Reject(ctx context.Context, id snowflake.ID, req RejectRequest) (*PayoutBatch, error)
	// MarkProcessing moves approved to processing once the operator
	// has handed the export to the payment rail.
	MarkProcessing(ctx context.Context, id snowflake.ID) (*PayoutBatch, error)
	// ConfirmCompleted is the external confirmation boundary: moves
	// processing to completed and marks the ledgers paid. Nothing
	// inside the engine calls this.
	ConfirmCompleted(ctx context.Context, id snowflake.ID) (*PayoutBatch, error)
	GetByID(ctx context.Context, id snowflake.ID) (*PayoutBatch, error)
	List(ctx context.Context, filter ListFilter) ([]PayoutBatch, error)
	CountPending(ctx context.Context) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, batch *PayoutBatch) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutBatch, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PayoutBatch, error)
	CountByStatus(ctx context.Context, db *gorm.DB, status BatchStatus) (int64, error)
	// Transition performs a guarded status update: the row changes
	// only when its current status matches from. Returns rows
	// affected so the caller can detect a lost race.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to BatchStatus, set map[string]any) (int64, error)
}

var (
	ErrInvalidMonth         = errors.New("invalid_month")
	ErrNoEligibleLedgers    = errors.New("no_eligible_ledgers")
	ErrInvalidState         = errors.New("invalid_state")
	ErrUnauthorizedApprover = errors.New("unauthorized_approver")
	ErrRejectionReason      = errors.New("rejection_reason_required")
	ErrNotFound             = errors.New("batch_not_found")
)
