package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aceylabs/finledger/internal/anomaly/domain"
	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Finance  *config.FinanceConfigHolder
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	finance  *config.FinanceConfigHolder
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("anomaly.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		finance:  p.Finance,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Inspect(ctx context.Context, tx *gorm.DB, snap domain.LedgerSnapshot) ([]domain.FinancialFlag, error) {
	cfg := s.finance.Get()
	var raised []domain.FinancialFlag

	if flag := s.checkRevenueSpike(cfg, snap); flag != nil {
		raised = append(raised, *flag)
	}
	if flag := s.checkNegativeNet(snap); flag != nil {
		raised = append(raised, *flag)
	}
	if flag := s.checkExpenseRatio(cfg, snap); flag != nil {
		raised = append(raised, *flag)
	}

	for i := range raised {
		if err := s.repo.Insert(ctx, tx, &raised[i]); err != nil {
			return nil, err
		}
		s.metrics.FlagsRaised.WithLabelValues(raised[i].DetectionRule, string(raised[i].Severity)).Inc()
		s.log.Warn("anomaly flag raised",
			zap.String("rule", raised[i].DetectionRule),
			zap.String("severity", string(raised[i].Severity)),
			zap.String("ledger_id", snap.LedgerID),
			zap.String("actual", raised[i].ActualValue),
			zap.String("expected", raised[i].ExpectedValue))
	}
	return raised, nil
}

func (s *Service) checkRevenueSpike(cfg config.FinanceConfig, snap domain.LedgerSnapshot) *domain.FinancialFlag {
	if len(snap.RevenueBaseline) == 0 {
		return nil
	}
	var sum int64
	for _, gross := range snap.RevenueBaseline {
		sum += gross
	}
	average := float64(sum) / float64(len(snap.RevenueBaseline))
	if average <= 0 {
		return nil
	}
	bound := average * cfg.SpikeMultiplier
	if float64(snap.GrossRevenue) <= bound {
		return nil
	}
	flag := s.newFlag(snap, domain.RuleRevenueSpike, domain.SeverityHigh,
		fmt.Sprintf("gross revenue exceeds %.1fx the trailing %d-month average",
			cfg.SpikeMultiplier, len(snap.RevenueBaseline)),
		strconv.FormatInt(snap.GrossRevenue, 10),
		fmt.Sprintf("<= %.0f", bound))
	return &flag
}

func (s *Service) checkNegativeNet(snap domain.LedgerSnapshot) *domain.FinancialFlag {
	if snap.NetRevenue >= 0 {
		return nil
	}
	flag := s.newFlag(snap, domain.RuleNegativeNet, domain.SeverityMedium,
		"net revenue is negative for the month",
		strconv.FormatInt(snap.NetRevenue, 10),
		">= 0")
	return &flag
}

func (s *Service) checkExpenseRatio(cfg config.FinanceConfig, snap domain.LedgerSnapshot) *domain.FinancialFlag {
	if snap.GrossRevenue <= 0 {
		return nil
	}
	ratio := float64(snap.Expenses) / float64(snap.GrossRevenue)
	if ratio <= cfg.ExpenseRatioBound {
		return nil
	}
	flag := s.newFlag(snap, domain.RuleHighExpenseRatio, domain.SeverityMedium,
		"expenses are a high share of gross revenue",
		strconv.FormatFloat(ratio, 'g', -1, 64),
		fmt.Sprintf("<= %g", cfg.ExpenseRatioBound))
	return &flag
}

func (s *Service) newFlag(snap domain.LedgerSnapshot, rule string, severity domain.Severity, description, actual, expected string) domain.FinancialFlag {
	now := s.clock.Now()
	return domain.FinancialFlag{
		ID:                 s.genID.Generate(),
		FlagType:           domain.FlagTypeAnomaly,
		Severity:           severity,
		AffectedEntityType: "monthly_ledger",
		AffectedEntityID:   snap.LedgerID,
		Status:             domain.FlagStatusActive,
		DetectionRule:      rule,
		Description:        description,
		ActualValue:        actual,
		ExpectedValue:      expected,
		RaisedAtUnix:       now.Unix(),
		RaisedAtISO:        now.Format("2006-01-02T15:04:05Z07:00"),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s *Service) RaiseManual(ctx context.Context, tx *gorm.DB, flag domain.FinancialFlag) (*domain.FinancialFlag, error) {
	now := s.clock.Now()
	flag.ID = s.genID.Generate()
	if flag.FlagType == "" {
		flag.FlagType = domain.FlagTypeManual
	}
	if flag.Severity == "" {
		flag.Severity = domain.SeverityMedium
	}
	flag.Status = domain.FlagStatusActive
	flag.RaisedAtUnix = now.Unix()
	flag.RaisedAtISO = now.Format("2006-01-02T15:04:05Z07:00")
	flag.CreatedAt = now
	flag.UpdatedAt = now

	if tx == nil {
		tx = s.db
	}
	if err := s.repo.Insert(ctx, tx, &flag); err != nil {
		return nil, err
	}
	s.metrics.FlagsRaised.WithLabelValues(flag.DetectionRule, string(flag.Severity)).Inc()
	return &flag, nil
}

func (s *Service) Resolve(ctx context.Context, id snowflake.ID, req domain.ResolveRequest) (*domain.FinancialFlag, error) {
	status := domain.FlagStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if status != domain.FlagStatusResolved && status != domain.FlagStatusIgnored {
		return nil, domain.ErrInvalidResolution
	}

	var resolved *domain.FinancialFlag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flag, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if flag.Status != domain.FlagStatusActive {
			return domain.ErrFlagAlreadyFinalized
		}

		old := map[string]any{"status": string(flag.Status)}
		now := s.clock.Now()
		_, actorID := auditctx.ActorFromContext(ctx)
		flag.Status = status
		flag.ResolvedBy = actorID
		flag.ResolvedAt = &now
		flag.ResolutionNote = strings.TrimSpace(req.Note)
		flag.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, flag); err != nil {
			return err
		}
		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "flag.resolved",
			TargetTable: domain.FinancialFlag{}.TableName(),
			RecordID:    flag.ID.String(),
			OldValues:   old,
			NewValues: map[string]any{
				"status":          string(flag.Status),
				"resolution_note": flag.ResolutionNote,
			},
		}); err != nil {
			return err
		}
		resolved = flag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.FinancialFlag, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.FinancialFlag, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) CountActive(ctx context.Context) (int64, error) {
	return s.repo.CountByStatus(ctx, s.db, domain.FlagStatusActive)
}
