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

	"github.com/aceylabs/finledger/internal/anomaly/domain"
	anomalyrepo "github.com/aceylabs/finledger/internal/anomaly/repository"
	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	auditrepo "github.com/aceylabs/finledger/internal/audit/repository"
	auditservice "github.com/aceylabs/finledger/internal/audit/service"
	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/migration"
	"github.com/aceylabs/finledger/internal/observability/metrics"
)

func setupAnomalyService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
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

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	svc := New(Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Finance:  config.NewStaticFinanceConfigHolder(config.DefaultFinanceConfig()),
		Repo:     anomalyrepo.Provide(),
		AuditSvc: auditSvc,
		Metrics:  metrics.NewWith(prometheus.NewRegistry()),
	})
	return svc, conn, node
}

func baseSnapshot(node *snowflake.Node) domain.LedgerSnapshot {
	return domain.LedgerSnapshot{
		LedgerID:     "abc123",
		PartnerID:    node.Generate(),
		Month:        "2026-01",
		GrossRevenue: 10000,
		NetRevenue:   8000,
		Expenses:     2000,
	}
}

func TestInspectCleanLedger(t *testing.T) {
	svc, _, node := setupAnomalyService(t)

	flags, err := svc.Inspect(context.Background(), nil, baseSnapshot(node))
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestInspectRevenueSpike(t *testing.T) {
	svc, conn, node := setupAnomalyService(t)

	snap := baseSnapshot(node)
	snap.GrossRevenue = 50000
	snap.NetRevenue = 50000
	snap.Expenses = 0
	snap.RevenueBaseline = []int64{10000, 10000, 10000}

	flags, err := svc.Inspect(context.Background(), conn, snap)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, domain.RuleRevenueSpike, flags[0].DetectionRule)
	assert.Equal(t, domain.SeverityHigh, flags[0].Severity)
	assert.Equal(t, "50000", flags[0].ActualValue)
	assert.Equal(t, domain.FlagStatusActive, flags[0].Status)
}

func TestInspectNoSpikeWithoutBaseline(t *testing.T) {
	svc, _, node := setupAnomalyService(t)

	// First month of activity; there is nothing to compare against.
	snap := baseSnapshot(node)
	snap.GrossRevenue = 5000000
	snap.NetRevenue = 5000000
	snap.Expenses = 0

	flags, err := svc.Inspect(context.Background(), nil, snap)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestInspectNegativeNetAndExpenseRatio(t *testing.T) {
	svc, conn, node := setupAnomalyService(t)

	snap := baseSnapshot(node)
	snap.GrossRevenue = 10000
	snap.Expenses = 15000
	snap.NetRevenue = -5000

	flags, err := svc.Inspect(context.Background(), conn, snap)
	require.NoError(t, err)
	require.Len(t, flags, 2)

	rules := []string{flags[0].DetectionRule, flags[1].DetectionRule}
	assert.Contains(t, rules, domain.RuleNegativeNet)
	assert.Contains(t, rules, domain.RuleHighExpenseRatio)
}

func TestResolveFlag(t *testing.T) {
	svc, _, _ := setupAnomalyService(t)

	flag, err := svc.RaiseManual(context.Background(), nil, domain.FinancialFlag{
		AffectedEntityType: "monthly_ledger",
		AffectedEntityID:   "abc123",
		DetectionRule:      "manual_review",
		Description:        "operator raised",
	})
	require.NoError(t, err)
	require.Equal(t, domain.FlagStatusActive, flag.Status)

	ctx := auditctx.WithActor(context.Background(), string(auditdomain.ActorTypeAPIKey), "api_key:alice")
	resolved, err := svc.Resolve(ctx, flag.ID, domain.ResolveRequest{
		Status: domain.FlagStatusResolved,
		Note:   "verified against bank statement",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FlagStatusResolved, resolved.Status)
	assert.Equal(t, "api_key:alice", resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = svc.Resolve(ctx, flag.ID, domain.ResolveRequest{Status: domain.FlagStatusIgnored})
	assert.ErrorIs(t, err, domain.ErrFlagAlreadyFinalized)
}

func TestResolveRejectsInvalidStatus(t *testing.T) {
	svc, _, node := setupAnomalyService(t)

	flag, err := svc.RaiseManual(context.Background(), nil, domain.FinancialFlag{
		AffectedEntityType: "monthly_ledger",
		AffectedEntityID:   "abc123",
		DetectionRule:      "manual_review",
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), flag.ID, domain.ResolveRequest{Status: "active"})
	assert.ErrorIs(t, err, domain.ErrInvalidResolution)

	_, err = svc.Resolve(context.Background(), node.Generate(), domain.ResolveRequest{Status: domain.FlagStatusResolved})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCountActive(t *testing.T) {
	svc, _, _ := setupAnomalyService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.RaiseManual(context.Background(), nil, domain.FinancialFlag{
			AffectedEntityType: "monthly_ledger",
			AffectedEntityID:   fmt.Sprintf("ledger-%d", i),
			DetectionRule:      "manual_review",
		})
		require.NoError(t, err)
	}

	count, err := svc.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
