package service

import (
	"context"
	"regexp"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	anomalydomain "github.com/aceylabs/finledger/internal/anomaly/domain"
	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
	"github.com/aceylabs/finledger/internal/ledger/domain"
	"github.com/aceylabs/finledger/internal/observability/metrics"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	"github.com/aceylabs/finledger/internal/ratelimit"
	"github.com/aceylabs/finledger/pkg/integrity"
)

// CreatedBySystem is the only identity allowed to write ledger rows.
const CreatedBySystem = "system"

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Finance    *config.FinanceConfigHolder
	Repo       domain.Repository
	EventRepo  eventdomain.Repository
	PartnerSvc partnerdomain.Service
	AnomalySvc anomalydomain.Service
	AuditSvc   auditdomain.Service
	Limiter    *ratelimit.EventIngestLimiter
	Metrics    *metrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	finance    *config.FinanceConfigHolder
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	partnerSvc partnerdomain.Service
	anomalySvc anomalydomain.Service
	auditSvc   auditdomain.Service
	limiter    *ratelimit.EventIngestLimiter
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		finance:    p.Finance,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		partnerSvc: p.PartnerSvc,
		anomalySvc: p.AnomalySvc,
		auditSvc:   p.AuditSvc,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
	}
}

func (s *Service) CalculateMonth(ctx context.Context, month string) (*domain.RunSummary, error) {
	if !monthPattern.MatchString(month) {
		return nil, domain.ErrInvalidMonth
	}

	release, ok, err := s.limiter.AcquireCalculation(ctx, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyCalculating
	}
	defer release()

	started := s.clock.Now()
	summary := &domain.RunSummary{Month: month}

	partnerIDs, err := s.eventRepo.ActivePartnerIDsForMonth(ctx, s.db, month)
	if err != nil {
		return nil, err
	}

	for _, partnerID := range partnerIDs {
		computed, flags, err := s.settlePartner(ctx, partnerID, month)
		if err != nil {
			// One partner's failure is isolated; the run continues.
			s.log.Error("partner settlement failed",
				zap.String("partner_id", partnerID.String()),
				zap.String("month", month),
				zap.Error(err))
			summary.Failures = append(summary.Failures, domain.PartnerFailure{
				PartnerID: partnerID,
				Reason:    err.Error(),
			})
			continue
		}
		if computed == nil {
			summary.LedgersSkipped++
			continue
		}
		summary.LedgersComputed++
		summary.FlagsRaised += len(flags)
	}

	elapsed := s.clock.Now().Sub(started)
	summary.DurationMillis = elapsed.Milliseconds()
	s.metrics.CalculationRuns.Observe(elapsed.Seconds())

	s.log.Info("monthly calculation finished",
		zap.String("month", month),
		zap.Int("computed", summary.LedgersComputed),
		zap.Int("skipped", summary.LedgersSkipped),
		zap.Int("flags", summary.FlagsRaised),
		zap.Int("failures", len(summary.Failures)))

	_ = s.auditSvc.Record(ctx, auditdomain.Change{
		Action:      "ledger.calculation_run",
		TargetTable: domain.MonthlyLedger{}.TableName(),
		RecordID:    month,
		NewValues: map[string]any{
			"ledgers_computed": summary.LedgersComputed,
			"ledgers_skipped":  summary.LedgersSkipped,
			"flags_raised":     summary.FlagsRaised,
			"failures":         len(summary.Failures),
		},
	})
	return summary, nil
}

// settlePartner computes one partner-month inside a single transaction
// so a partially summed ledger is never visible. A nil ledger with nil
// error means the partner was skipped.
func (s *Service) settlePartner(ctx context.Context, partnerID snowflake.ID, month string) (*domain.MonthlyLedger, []anomalydomain.FinancialFlag, error) {
	partner, err := s.partnerSvc.GetByID(ctx, partnerID)
	if err != nil {
		if err == partnerdomain.ErrNotFound {
			// Events referencing an unknown partner are a data problem
			// worth surfacing, not a reason to crash the run.
			s.flagMissingPartner(ctx, partnerID, month)
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if !partner.Payable() {
		return nil, nil, nil
	}

	var (
		ledger *domain.MonthlyLedger
		flags  []anomalydomain.FinancialFlag
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := s.eventRepo.ConfirmedForPartnerMonth(ctx, tx, partnerID, month)
		if err != nil {
			return err
		}
		// Absence is not zero: no events means no ledger this month.
		if len(events) == 0 {
			return nil
		}

		totals := sumEvents(events)
		for _, eventID := range totals.excluded {
			s.log.Warn("event excluded from settlement",
				zap.String("event_id", eventID.String()),
				zap.String("partner_id", partnerID.String()),
				zap.String("month", month))
		}
		computed := buildLedger(partner, month, totals, s.clock.Now())
		computed.ID = domain.LedgerID(partnerID, month)
		computed.CalculationHash = hashCalculation(computed)

		existing, err := s.repo.FindByID(ctx, tx, computed.ID)
		if err != nil && err != domain.ErrNotFound {
			return err
		}
		if existing != nil {
			// Ledgers already settled into a batch are frozen.
			if existing.BatchID != nil {
				return nil
			}
			if existing.CalculationHash == computed.CalculationHash {
				ledger = existing
				return nil
			}
			computed.CreatedAt = existing.CreatedAt
		}

		if err := s.repo.Upsert(ctx, tx, computed); err != nil {
			return err
		}

		history, err := s.repo.RevenueHistory(ctx, tx, partnerID, month, s.finance.Get().SpikeLookbackMonths)
		if err != nil {
			return err
		}
		baseline := make([]int64, 0, len(history))
		for _, h := range history {
			baseline = append(baseline, h.GrossRevenue)
		}

		flags, err = s.anomalySvc.Inspect(ctx, tx, anomalydomain.LedgerSnapshot{
			LedgerID:        computed.ID,
			PartnerID:       partnerID,
			Month:           month,
			GrossRevenue:    computed.GrossRevenue,
			NetRevenue:      computed.NetRevenue,
			Expenses:        computed.TotalExpenses,
			RevenueBaseline: baseline,
		})
		if err != nil {
			return err
		}

		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "ledger.computed",
			TargetTable: domain.MonthlyLedger{}.TableName(),
			RecordID:    computed.ID,
			OldValues:   ledgerValues(existing),
			NewValues:   ledgerValues(computed),
		}); err != nil {
			return err
		}

		ledger = computed
		s.metrics.LedgersComputed.WithLabelValues(string(computed.PayoutStatus)).Inc()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ledger, flags, nil
}

type eventTotals struct {
	gross       int64
	expenses    int64
	adjustments int64
	count       int64
	excluded    []snowflake.ID
}

// sumEvents aggregates in integer minor units; order of events never
// affects the result. Events with an unrecognized type are excluded
// from settlement, not fatal; the caller logs them.
func sumEvents(events []eventdomain.FinancialEvent) eventTotals {
	var t eventTotals
	for _, e := range events {
		switch e.Type {
		case eventdomain.EventTypeRevenue:
			t.gross += e.AmountMinorUnits
		case eventdomain.EventTypeExpense:
			t.expenses += e.AmountMinorUnits
		case eventdomain.EventTypeAdjustment:
			t.adjustments += e.AmountMinorUnits
		default:
			t.excluded = append(t.excluded, e.ID)
			continue
		}
		t.count++
	}
	return t
}

func buildLedger(partner *partnerdomain.PartnerProfile, month string, totals eventTotals, now time.Time) *domain.MonthlyLedger {
	net := totals.gross - totals.expenses + totals.adjustments

	payout := floorShare(net, partner.RevenueSharePct)
	if payout < 0 {
		payout = 0
	}

	status := domain.PayoutStatusPending
	if payout < partner.MinimumPayout {
		// Below the contract minimum nothing is owed this month; the
		// stored payout is zero, not the computed amount.
		status = domain.PayoutStatusBelowThreshold
		payout = 0
	}

	return &domain.MonthlyLedger{
		PartnerID:        partner.ID,
		Month:            month,
		GrossRevenue:     totals.gross,
		TotalExpenses:    totals.expenses,
		NetRevenue:       net,
		SharePct:         partner.RevenueSharePct,
		MinimumPayout:    partner.MinimumPayout,
		PayoutAmount:     payout,
		Currency:         partner.Currency,
		PayoutStatus:     status,
		EventCount:       totals.count,
		CreatedBy:        CreatedBySystem,
		CalculatedAtUnix: now.Unix(),
		CalculatedAtISO:  now.Format(time.RFC3339),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// floorShare computes floor(net * pct / 100) in integer arithmetic.
// Go's integer division truncates toward zero, so negative nets need
// an explicit floor adjustment.
func floorShare(net, pct int64) int64 {
	product := net * pct
	quotient := product / 100
	if product%100 != 0 && (product < 0) {
		quotient--
	}
	return quotient
}

// hashCalculation fingerprints the run's inputs and outputs. The same
// events and partner terms always produce the same hash.
func hashCalculation(l *domain.MonthlyLedger) string {
	return integrity.Sum(
		integrity.String("partner_id", l.PartnerID.String()),
		integrity.String("month", l.Month),
		integrity.Int64("gross_revenue", l.GrossRevenue),
		integrity.Int64("total_expenses", l.TotalExpenses),
		integrity.Int64("net_revenue", l.NetRevenue),
		integrity.Int64("payout_amount", l.PayoutAmount),
		integrity.Int64("share_pct", l.SharePct),
	)
}

func (s *Service) flagMissingPartner(ctx context.Context, partnerID snowflake.ID, month string) {
	_, err := s.anomalySvc.RaiseManual(ctx, nil, anomalydomain.FinancialFlag{
		FlagType:           anomalydomain.FlagTypeCompliance,
		Severity:           anomalydomain.SeverityHigh,
		AffectedEntityType: "partner",
		AffectedEntityID:   partnerID.String(),
		DetectionRule:      anomalydomain.RuleMissingPartner,
		Description:        "confirmed events reference a partner with no profile",
		ActualValue:        month,
		ExpectedValue:      "partner profile present",
	})
	if err != nil {
		s.log.Error("failed to flag missing partner",
			zap.String("partner_id", partnerID.String()), zap.Error(err))
	}
}

func ledgerValues(l *domain.MonthlyLedger) map[string]any {
	if l == nil {
		return nil
	}
	return map[string]any{
		"gross_revenue":    l.GrossRevenue,
		"total_expenses":   l.TotalExpenses,
		"net_revenue":      l.NetRevenue,
		"payout_amount":    l.PayoutAmount,
		"payout_status":    string(l.PayoutStatus),
		"event_count":      l.EventCount,
		"calculation_hash": l.CalculationHash,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.MonthlyLedger, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.MonthlyLedger, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, s.db, filter)
}
