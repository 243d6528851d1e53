package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/authorization"
	"github.com/aceylabs/finledger/internal/clock"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	"github.com/aceylabs/finledger/internal/observability/metrics"
	"github.com/aceylabs/finledger/internal/payout/domain"
	"github.com/aceylabs/finledger/pkg/integrity"
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	LedgerRepo ledgerdomain.Repository
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	Metrics    *metrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	ledgerRepo ledgerdomain.Repository
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledgerRepo: p.LedgerRepo,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) CreateBatch(ctx context.Context, req domain.CreateBatchRequest) (*domain.PayoutBatch, error) {
	month := strings.TrimSpace(req.Month)
	if !monthPattern.MatchString(month) {
		return nil, domain.ErrInvalidMonth
	}
	_, actorID := auditctx.ActorFromContext(ctx)

	var batch *domain.PayoutBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledgers, err := s.ledgerRepo.EligibleForMonth(ctx, tx, month)
		if err != nil {
			return err
		}
		if len(ledgers) == 0 {
			return domain.ErrNoEligibleLedgers
		}

		now := s.clock.Now()
		created := &domain.PayoutBatch{
			ID:            s.genID.Generate(),
			Month:         month,
			ReferenceCode: "PB-" + ulid.Make().String(),
			Status:        domain.BatchStatusPending,
			Currency:      ledgers[0].Currency,
			RequestedBy:   actorID,
			CreatedAtUnix: now.Unix(),
			CreatedAtISO:  now.Format("2006-01-02T15:04:05Z07:00"),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		ids := make([]string, 0, len(ledgers))
		for _, l := range ledgers {
			created.TotalAmount += l.PayoutAmount
			ids = append(ids, l.ID)
		}
		created.LedgerCount = int64(len(ledgers))
		created.BatchHash = hashBatch(ledgers)

		if err := s.repo.Insert(ctx, tx, created); err != nil {
			return err
		}

		attached, err := s.ledgerRepo.AttachToBatch(ctx, tx, ids, created.ID)
		if err != nil {
			return err
		}
		// A ledger changing under us between select and attach would
		// desync the batch hash; abort and let the caller retry.
		if attached != created.LedgerCount {
			return domain.ErrInvalidState
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "batch.created",
			TargetTable: domain.PayoutBatch{}.TableName(),
			RecordID:    created.ID.String(),
			NewValues: map[string]any{
				"month":        month,
				"total_amount": created.TotalAmount,
				"ledger_count": created.LedgerCount,
				"batch_hash":   created.BatchHash,
			},
		}); err != nil {
			return err
		}
		batch = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BatchTransitions.WithLabelValues(string(domain.BatchStatusPending)).Inc()
	s.log.Info("payout batch created",
		zap.String("batch_id", batch.ID.String()),
		zap.String("month", batch.Month),
		zap.Int64("total_amount", batch.TotalAmount),
		zap.Int64("ledger_count", batch.LedgerCount))
	return batch, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.PayoutBatch, error) {
	actorID, err := s.requireApprover(ctx, id)
	if err != nil {
		return nil, err
	}

	var approved *domain.PayoutBatch
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusPending {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		affected, err := s.repo.Transition(ctx, tx, id,
			domain.BatchStatusPending, domain.BatchStatusApproved,
			map[string]any{
				"approved_by": actorID,
				"approved_at": now,
				"updated_at":  now,
			})
		if err != nil {
			return err
		}
		// Zero rows means another approver won the race.
		if affected == 0 {
			return domain.ErrInvalidState
		}

		cascaded, err := s.ledgerRepo.TransitionForBatch(ctx, tx, id,
			ledgerdomain.PayoutStatusPending, ledgerdomain.PayoutStatusApproved)
		if err != nil {
			return err
		}
		if cascaded != batch.LedgerCount {
			return fmt.Errorf("approval cascade touched %d of %d ledgers", cascaded, batch.LedgerCount)
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "batch.approved",
			TargetTable: domain.PayoutBatch{}.TableName(),
			RecordID:    id.String(),
			OldValues:   map[string]any{"status": string(domain.BatchStatusPending)},
			NewValues: map[string]any{
				"status":       string(domain.BatchStatusApproved),
				"approved_by":  actorID,
				"total_amount": batch.TotalAmount,
			},
		}); err != nil {
			return err
		}

		batch.Status = domain.BatchStatusApproved
		batch.ApprovedBy = actorID
		batch.ApprovedAt = &now
		batch.UpdatedAt = now
		approved = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BatchTransitions.WithLabelValues(string(domain.BatchStatusApproved)).Inc()
	s.log.Info("payout batch approved",
		zap.String("batch_id", id.String()),
		zap.String("approved_by", actorID))
	return approved, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, req domain.RejectRequest) (*domain.PayoutBatch, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.ErrRejectionReason
	}
	_, actorID := auditctx.ActorFromContext(ctx)
	if err := s.authorize(ctx, actorID, id, authorization.ActionBatchReject); err != nil {
		return nil, err
	}

	var rejected *domain.PayoutBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusPending {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		affected, err := s.repo.Transition(ctx, tx, id,
			domain.BatchStatusPending, domain.BatchStatusRejected,
			map[string]any{
				"rejected_by":      actorID,
				"rejected_at":      now,
				"rejection_reason": reason,
				"updated_at":       now,
			})
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrInvalidState
		}

		// Rejected ledgers need an operator to look at them; they do
		// not silently slide back into the next batch.
		if _, err := s.ledgerRepo.DetachFromBatch(ctx, tx, id, ledgerdomain.PayoutStatusNeedsReview); err != nil {
			return err
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "batch.rejected",
			TargetTable: domain.PayoutBatch{}.TableName(),
			RecordID:    id.String(),
			OldValues:   map[string]any{"status": string(domain.BatchStatusPending)},
			NewValues: map[string]any{
				"status":           string(domain.BatchStatusRejected),
				"rejected_by":      actorID,
				"rejection_reason": reason,
			},
		}); err != nil {
			return err
		}

		batch.Status = domain.BatchStatusRejected
		batch.RejectedBy = actorID
		batch.RejectedAt = &now
		batch.RejectionReason = reason
		batch.UpdatedAt = now
		rejected = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BatchTransitions.WithLabelValues(string(domain.BatchStatusRejected)).Inc()
	return rejected, nil
}

func (s *Service) MarkProcessing(ctx context.Context, id snowflake.ID) (*domain.PayoutBatch, error) {
	return s.progress(ctx, id, domain.BatchStatusApproved, domain.BatchStatusProcessing, "batch.processing", nil, nil)
}

func (s *Service) ConfirmCompleted(ctx context.Context, id snowflake.ID) (*domain.PayoutBatch, error) {
	now := s.clock.Now()
	batch, err := s.progress(ctx, id, domain.BatchStatusProcessing, domain.BatchStatusCompleted, "batch.completed",
		map[string]any{"completed_at": now},
		func(tx *gorm.DB, batch *domain.PayoutBatch) error {
			// Paid ledgers commit or roll back with the completion itself;
			// a completed batch never leaves its ledgers behind.
			cascaded, err := s.ledgerRepo.TransitionForBatch(ctx, tx, id,
				ledgerdomain.PayoutStatusApproved, ledgerdomain.PayoutStatusPaid)
			if err != nil {
				return err
			}
			if cascaded != batch.LedgerCount {
				return fmt.Errorf("completion cascade touched %d of %d ledgers", cascaded, batch.LedgerCount)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	batch.CompletedAt = &now
	return batch, nil
}

func (s *Service) progress(ctx context.Context, id snowflake.ID, from, to domain.BatchStatus, action string, extra map[string]any, then func(tx *gorm.DB, batch *domain.PayoutBatch) error) (*domain.PayoutBatch, error) {
	_, actorID := auditctx.ActorFromContext(ctx)
	if err := s.authorize(ctx, actorID, id, authorization.ActionBatchProgress); err != nil {
		return nil, err
	}

	var updated *domain.PayoutBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status != from {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		set := map[string]any{"updated_at": now}
		for k, v := range extra {
			set[k] = v
		}
		affected, err := s.repo.Transition(ctx, tx, id, from, to, set)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrInvalidState
		}

		if then != nil {
			if err := then(tx, batch); err != nil {
				return err
			}
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      action,
			TargetTable: domain.PayoutBatch{}.TableName(),
			RecordID:    id.String(),
			OldValues:   map[string]any{"status": string(from)},
			NewValues:   map[string]any{"status": string(to)},
		}); err != nil {
			return err
		}

		batch.Status = to
		batch.UpdatedAt = now
		updated = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BatchTransitions.WithLabelValues(string(to)).Inc()
	return updated, nil
}

// requireApprover is the human gate on the only path money moves
// forward on. The automated system identity is rejected before the
// policy engine is even consulted.
func (s *Service) requireApprover(ctx context.Context, id snowflake.ID) (string, error) {
	actorType, actorID := auditctx.ActorFromContext(ctx)
	if actorID == "" || actorType == string(auditdomain.ActorTypeSystem) || actorID == "system" || actorID == "scheduler" {
		s.auditUnauthorized(ctx, id, actorID)
		return "", domain.ErrUnauthorizedApprover
	}
	if err := s.authorize(ctx, actorID, id, authorization.ActionBatchApprove); err != nil {
		return "", err
	}
	return actorID, nil
}

func (s *Service) authorize(ctx context.Context, actorID string, id snowflake.ID, action string) error {
	err := s.authzSvc.Authorize(ctx, actorID, authorization.ObjectBatch, action)
	if err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			s.auditUnauthorized(ctx, id, actorID)
			return domain.ErrUnauthorizedApprover
		}
		return err
	}
	return nil
}

func (s *Service) auditUnauthorized(ctx context.Context, id snowflake.ID, actorID string) {
	_ = s.auditSvc.RecordRejected(ctx, auditdomain.Change{
		Action:      "batch.approval_denied",
		TargetTable: domain.PayoutBatch{}.TableName(),
		RecordID:    id.String(),
		NewValues:   map[string]any{"actor": actorID},
	}, domain.ErrUnauthorizedApprover)
	s.log.Warn("unauthorized batch approval attempt",
		zap.String("batch_id", id.String()),
		zap.String("actor", actorID))
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.PayoutBatch, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.PayoutBatch, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) CountPending(ctx context.Context) (int64, error) {
	return s.repo.CountByStatus(ctx, s.db, domain.BatchStatusPending)
}

// hashBatch covers constituent ledger ids and amounts in id order, so
// export generation can detect drift after approval.
func hashBatch(ledgers []ledgerdomain.MonthlyLedger) string {
	fields := make([]integrity.Field, 0, len(ledgers)*2)
	for _, l := range ledgers {
		fields = append(fields,
			integrity.String("ledger_id", l.ID),
			integrity.Int64("payout_amount", l.PayoutAmount),
		)
	}
	return integrity.Sum(fields...)
}
