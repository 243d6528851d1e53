package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	anomalydomain "github.com/aceylabs/finledger/internal/anomaly/domain"
	anomalyrepo "github.com/aceylabs/finledger/internal/anomaly/repository"
	anomalyservice "github.com/aceylabs/finledger/internal/anomaly/service"
	auditrepo "github.com/aceylabs/finledger/internal/audit/repository"
	auditservice "github.com/aceylabs/finledger/internal/audit/service"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
	eventrepo "github.com/aceylabs/finledger/internal/event/repository"
	"github.com/aceylabs/finledger/internal/ledger/domain"
	ledgerrepo "github.com/aceylabs/finledger/internal/ledger/repository"
	"github.com/aceylabs/finledger/internal/migration"
	"github.com/aceylabs/finledger/internal/observability/metrics"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	partnerrepo "github.com/aceylabs/finledger/internal/partner/repository"
	partnerservice "github.com/aceylabs/finledger/internal/partner/service"
	"github.com/aceylabs/finledger/internal/ratelimit"
)

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clk        *clock.FakeClock
	svc        domain.Service
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	partnerSvc partnerdomain.Service
	limiter    *ratelimit.EventIngestLimiter
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	m := metrics.NewWith(prometheus.NewRegistry())
	finance := config.NewStaticFinanceConfigHolder(config.DefaultFinanceConfig())

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	partnerSvc := partnerservice.New(partnerservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Finance: finance,
		Repo: partnerrepo.Provide(), AuditSvc: auditSvc,
	})
	anomalySvc := anomalyservice.New(anomalyservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Finance: finance,
		Repo: anomalyrepo.Provide(), AuditSvc: auditSvc, Metrics: m,
	})
	limiter := ratelimit.NewEventIngestLimiter(ratelimit.Params{
		Config: config.Config{}, Log: log,
	})

	repo := ledgerrepo.Provide()
	evRepo := eventrepo.Provide()
	svc := New(Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Finance: finance,
		Repo: repo, EventRepo: evRepo, PartnerSvc: partnerSvc,
		AnomalySvc: anomalySvc, AuditSvc: auditSvc, Limiter: limiter, Metrics: m,
	})

	return &fixture{
		db:         conn,
		node:       node,
		clk:        clk,
		svc:        svc,
		repo:       repo,
		eventRepo:  evRepo,
		partnerSvc: partnerSvc,
		limiter:    limiter,
	}
}

func (f *fixture) createPartner(t *testing.T, name string, sharePct, minPayout int64) *partnerdomain.PartnerProfile {
	t.Helper()
	partner, err := f.partnerSvc.Create(context.Background(), partnerdomain.CreateRequest{
		Name:            name,
		Email:           fmt.Sprintf("%s@example.com", name),
		RevenueSharePct: sharePct,
		MinimumPayout:   minPayout,
		Currency:        "USD",
	})
	require.NoError(t, err)
	return partner
}

func (f *fixture) seedEvent(t *testing.T, partnerID snowflake.ID, eventType eventdomain.EventType, amount int64, month string) {
	t.Helper()
	occurred, err := time.Parse("2006-01", month)
	require.NoError(t, err)
	event := &eventdomain.FinancialEvent{
		ID:               f.node.Generate(),
		Type:             eventType,
		Category:         "platform_fee",
		AmountMinorUnits: amount,
		Currency:         "USD",
		PartnerID:        &partnerID,
		Month:            month,
		OccurredAt:       occurred.Add(36 * time.Hour),
		OccurredAtUnix:   occurred.Add(36 * time.Hour).Unix(),
		OccurredDate:     occurred.Add(36 * time.Hour).Format("2006-01-02"),
		SourceSystem:     "test_seed",
		ReferenceID:      f.node.Generate().String(),
		Status:           eventdomain.EventStatusConfirmed,
		CreatedAt:        f.clk.Now(),
	}
	require.NoError(t, f.eventRepo.Insert(context.Background(), f.db, event))
}

func TestCalculateMonthExcludesUnknownEventTypes(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "acme", 50, 10000)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 50000, "2026-01")
	f.seedEvent(t, partner.ID, eventdomain.EventType("garbage"), 99999, "2026-01")

	summary, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LedgersComputed)

	ledger, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), ledger.GrossRevenue)
	assert.Equal(t, int64(25000), ledger.PayoutAmount)
	assert.Equal(t, int64(1), ledger.EventCount)
}

func TestCalculateMonthFiftyPercentShare(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "acme", 50, 10000)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 30000, "2026-01")
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 20000, "2026-01")

	summary, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LedgersComputed)
	assert.Empty(t, summary.Failures)

	ledger, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), ledger.GrossRevenue)
	assert.Equal(t, int64(0), ledger.TotalExpenses)
	assert.Equal(t, int64(50000), ledger.NetRevenue)
	assert.Equal(t, int64(25000), ledger.PayoutAmount)
	assert.Equal(t, domain.PayoutStatusPending, ledger.PayoutStatus)
	assert.Equal(t, int64(2), ledger.EventCount)
	assert.Equal(t, CreatedBySystem, ledger.CreatedBy)
	assert.NotEmpty(t, ledger.CalculationHash)
}

func TestCalculateMonthBelowThresholdStoresZero(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "smallco", 50, 10000)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 10000, "2026-01")

	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	ledger, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)
	// The computed 5000 never reaches storage; nothing is owed.
	assert.Equal(t, int64(0), ledger.PayoutAmount)
	assert.Equal(t, domain.PayoutStatusBelowThreshold, ledger.PayoutStatus)
}

func TestCalculateMonthIdempotent(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "acme", 30, 0)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 100000, "2026-01")

	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	first, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	_, err = f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	second, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)

	assert.Equal(t, first.CalculationHash, second.CalculationHash)
	assert.Equal(t, first.PayoutAmount, second.PayoutAmount)
	assert.Equal(t, first.CalculatedAtUnix, second.CalculatedAtUnix)
}

func TestCalculateMonthRecomputesAfterNewEvent(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "acme", 50, 0)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 40000, "2026-01")

	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	first, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(20000), first.PayoutAmount)

	f.seedEvent(t, partner.ID, eventdomain.EventTypeExpense, 10000, "2026-01")
	_, err = f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	second, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(15000), second.PayoutAmount)
	assert.NotEqual(t, first.CalculationHash, second.CalculationHash)
}

func TestCalculateMonthFrozenLedgerUntouched(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "acme", 50, 0)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 40000, "2026-01")

	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	batchID := f.node.Generate()
	ledgerID := domain.LedgerID(partner.ID, "2026-01")
	require.NoError(t, f.db.Model(&domain.MonthlyLedger{}).
		Where("id = ?", ledgerID).
		Update("batch_id", batchID).Error)

	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 100000, "2026-01")
	_, err = f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	frozen, err := f.svc.GetByID(context.Background(), ledgerID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), frozen.PayoutAmount)
}

func TestCalculateMonthMissingPartnerFlagged(t *testing.T) {
	f := setupFixture(t)
	ghost := f.node.Generate()
	f.seedEvent(t, ghost, eventdomain.EventTypeRevenue, 40000, "2026-01")

	summary, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.LedgersComputed)
	assert.Equal(t, 1, summary.LedgersSkipped)

	var flags []anomalydomain.FinancialFlag
	require.NoError(t, f.db.Where("detection_rule = ?", anomalydomain.RuleMissingPartner).Find(&flags).Error)
	require.Len(t, flags, 1)
	assert.Equal(t, ghost.String(), flags[0].AffectedEntityID)
	assert.Equal(t, anomalydomain.SeverityHigh, flags[0].Severity)
}

func TestCalculateMonthNegativeNetClampedAndFlagged(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "underwater", 50, 0)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 10000, "2026-01")
	f.seedEvent(t, partner.ID, eventdomain.EventTypeExpense, 30000, "2026-01")

	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	ledger, err := f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(-20000), ledger.NetRevenue)
	assert.Equal(t, int64(0), ledger.PayoutAmount)

	var flags []anomalydomain.FinancialFlag
	require.NoError(t, f.db.Where("detection_rule = ?", anomalydomain.RuleNegativeNet).Find(&flags).Error)
	assert.Len(t, flags, 1)
}

func TestCalculateMonthExpenseRatioFlag(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "spendy", 50, 0)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 100000, "2026-01")
	f.seedEvent(t, partner.ID, eventdomain.EventTypeExpense, 80000, "2026-01")

	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	var flags []anomalydomain.FinancialFlag
	require.NoError(t, f.db.Where("detection_rule = ?", anomalydomain.RuleHighExpenseRatio).Find(&flags).Error)
	require.Len(t, flags, 1)
	assert.Equal(t, "0.8", flags[0].ActualValue)
}

func TestCalculateMonthRevenueSpikeFlag(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "spiky", 50, 0)
	for _, month := range []string{"2025-10", "2025-11", "2025-12"} {
		f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 10000, month)
		_, err := f.svc.CalculateMonth(context.Background(), month)
		require.NoError(t, err)
	}

	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 50000, "2026-01")
	_, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)

	var flags []anomalydomain.FinancialFlag
	require.NoError(t, f.db.Where("detection_rule = ?", anomalydomain.RuleRevenueSpike).Find(&flags).Error)
	require.Len(t, flags, 1)
	assert.Equal(t, "50000", flags[0].ActualValue)
}

func TestCalculateMonthInactivePartnerSkipped(t *testing.T) {
	f := setupFixture(t)
	partner := f.createPartner(t, "dormant", 50, 0)
	suspended := string(partnerdomain.PartnerStatusSuspended)
	_, err := f.partnerSvc.Update(context.Background(), partner.ID, partnerdomain.UpdateRequest{
		Status: &suspended,
	})
	require.NoError(t, err)
	f.seedEvent(t, partner.ID, eventdomain.EventTypeRevenue, 40000, "2026-01")

	summary, err := f.svc.CalculateMonth(context.Background(), "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.LedgersComputed)
	assert.Equal(t, 1, summary.LedgersSkipped)

	_, err = f.svc.GetByID(context.Background(), domain.LedgerID(partner.ID, "2026-01"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCalculateMonthRejectsMalformedMonth(t *testing.T) {
	f := setupFixture(t)
	for _, month := range []string{"", "2026", "2026-13", "2026-00", "jan-2026", "2026-1"} {
		_, err := f.svc.CalculateMonth(context.Background(), month)
		assert.ErrorIs(t, err, domain.ErrInvalidMonth, month)
	}
}

func TestCalculateMonthSingleRunner(t *testing.T) {
	f := setupFixture(t)
	release, ok, err := f.limiter.AcquireCalculation(context.Background(), "2026-01")
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = f.svc.CalculateMonth(context.Background(), "2026-01")
	assert.ErrorIs(t, err, domain.ErrAlreadyCalculating)
}

func TestFloorShare(t *testing.T) {
	cases := []struct {
		net, pct, want int64
	}{
		{50000, 50, 25000},
		{10001, 50, 5000},
		{99, 33, 32},
		{1, 1, 0},
		{0, 50, 0},
		{-50000, 50, -25000},
		{-1, 3, -1},
		{-99, 33, -33},
		{100000, 0, 0},
		{100000, 100, 100000},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, floorShare(tc.net, tc.pct),
			"floorShare(%d, %d)", tc.net, tc.pct)
	}
}

func TestSumEventsExcludesUnknownTypes(t *testing.T) {
	events := []eventdomain.FinancialEvent{
		{Type: eventdomain.EventTypeRevenue, AmountMinorUnits: 1000},
		{Type: eventdomain.EventTypeExpense, AmountMinorUnits: 300},
		{Type: eventdomain.EventTypeAdjustment, AmountMinorUnits: -100},
		{Type: "mystery", AmountMinorUnits: 999999},
	}
	totals := sumEvents(events)
	assert.Equal(t, int64(1000), totals.gross)
	assert.Equal(t, int64(300), totals.expenses)
	assert.Equal(t, int64(-100), totals.adjustments)
	assert.Equal(t, int64(3), totals.count)
	assert.Len(t, totals.excluded, 1)
}

func TestLedgerIDDeterministic(t *testing.T) {
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	id := node.Generate()
	assert.Equal(t, domain.LedgerID(id, "2026-01"), domain.LedgerID(id, "2026-01"))
	assert.NotEqual(t, domain.LedgerID(id, "2026-01"), domain.LedgerID(id, "2026-02"))
}
