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

	auditrepo "github.com/aceylabs/finledger/internal/audit/repository"
	auditservice "github.com/aceylabs/finledger/internal/audit/service"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/event/domain"
	eventrepo "github.com/aceylabs/finledger/internal/event/repository"
	"github.com/aceylabs/finledger/internal/migration"
	"github.com/aceylabs/finledger/internal/observability/metrics"
)

func setupEventService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
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
	clk := clock.NewFakeClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	svc := New(Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Finance:  config.NewStaticFinanceConfigHolder(config.DefaultFinanceConfig()),
		Repo:     eventrepo.Provide(),
		AuditSvc: auditSvc,
		Metrics:  metrics.NewWith(prometheus.NewRegistry()),
	})
	return svc, conn, node
}

func validRequest() domain.RecordEventRequest {
	return domain.RecordEventRequest{
		Type:             "revenue",
		Category:         "platform_fee",
		AmountMinorUnits: 45000,
		Currency:         "USD",
		SourceSystem:     "billing",
		ReferenceID:      "inv-1001",
	}
}

func TestRecordEvent(t *testing.T) {
	svc, _, _ := setupEventService(t)

	event, err := svc.RecordEvent(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypeRevenue, event.Type)
	assert.Equal(t, int64(45000), event.AmountMinorUnits)
	assert.Equal(t, "2026-01", event.Month)
	assert.Equal(t, domain.EventStatusConfirmed, event.Status)
	assert.NotEmpty(t, event.IntegrityHash)
}

func TestRecordEventValidation(t *testing.T) {
	svc, _, node := setupEventService(t)
	partnerID := node.Generate().String()

	cases := []struct {
		name    string
		mutate  func(*domain.RecordEventRequest)
		wantErr error
	}{
		{"unknown type", func(r *domain.RecordEventRequest) { r.Type = "windfall" }, domain.ErrInvalidType},
		{"empty category", func(r *domain.RecordEventRequest) { r.Category = " " }, domain.ErrInvalidCategory},
		{"zero amount", func(r *domain.RecordEventRequest) { r.AmountMinorUnits = 0 }, domain.ErrInvalidAmount},
		{"negative revenue", func(r *domain.RecordEventRequest) { r.AmountMinorUnits = -100 }, domain.ErrNegativeRevenue},
		{"unsupported currency", func(r *domain.RecordEventRequest) { r.Currency = "XRP" }, domain.ErrUnsupportedCurrency},
		{"bad partner id", func(r *domain.RecordEventRequest) { r.PartnerID = "not-a-snowflake" }, domain.ErrInvalidPartnerID},
		{"bad occurred at", func(r *domain.RecordEventRequest) { r.OccurredAt = "yesterday" }, domain.ErrInvalidOccurredAt},
		{"empty source", func(r *domain.RecordEventRequest) { r.SourceSystem = "" }, domain.ErrInvalidSourceSystem},
		{"empty reference", func(r *domain.RecordEventRequest) { r.ReferenceID = "" }, domain.ErrInvalidReferenceID},
		{"bad status", func(r *domain.RecordEventRequest) { r.Status = "tentative" }, domain.ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.PartnerID = partnerID
			tc.mutate(&req)
			_, err := svc.RecordEvent(context.Background(), req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRecordEventNegativeExpenseAllowed(t *testing.T) {
	svc, _, _ := setupEventService(t)
	req := validRequest()
	req.Type = "expense"
	req.Category = "refund"
	req.AmountMinorUnits = -2500

	event, err := svc.RecordEvent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(-2500), event.AmountMinorUnits)
}

func TestRecordEventDuplicateReference(t *testing.T) {
	svc, _, _ := setupEventService(t)

	_, err := svc.RecordEvent(context.Background(), validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.AmountMinorUnits = 99999
	_, err = svc.RecordEvent(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	// A different source system may reuse the reference id.
	req = validRequest()
	req.SourceSystem = "crm"
	_, err = svc.RecordEvent(context.Background(), req)
	assert.NoError(t, err)
}

func TestVerifyIntegrity(t *testing.T) {
	svc, conn, _ := setupEventService(t)

	event, err := svc.RecordEvent(context.Background(), validRequest())
	require.NoError(t, err)

	result, err := svc.VerifyIntegrity(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, result.Intact)
	assert.Equal(t, result.StoredHash, result.ComputedHash)

	// Tampering outside the ORM is exactly what the hash exists to catch.
	require.NoError(t, conn.Exec(
		"UPDATE financial_events SET amount_minor_units = ? WHERE id = ?",
		1, event.ID).Error)

	result, err = svc.VerifyIntegrity(context.Background(), event.ID)
	require.NoError(t, err)
	assert.False(t, result.Intact)
	assert.NotEqual(t, result.StoredHash, result.ComputedHash)
}

func TestRecordAdjustmentInheritsOriginal(t *testing.T) {
	svc, _, node := setupEventService(t)
	partnerID := node.Generate()

	req := validRequest()
	req.PartnerID = partnerID.String()
	req.OccurredAt = "2026-01-10T08:00:00Z"
	original, err := svc.RecordEvent(context.Background(), req)
	require.NoError(t, err)

	adjustment, err := svc.RecordAdjustment(context.Background(), domain.RecordAdjustmentRequest{
		AdjustsEventID:   original.ID.String(),
		AmountMinorUnits: -5000,
		Description:      "overcharge correction",
		SourceSystem:     "billing",
		ReferenceID:      "adj-1001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypeAdjustment, adjustment.Type)
	require.NotNil(t, adjustment.PartnerID)
	assert.Equal(t, partnerID, *adjustment.PartnerID)
	assert.Equal(t, original.Currency, adjustment.Currency)
	assert.Equal(t, original.Month, adjustment.Month)
	assert.Equal(t, original.Category, adjustment.Category)
	require.NotNil(t, adjustment.AdjustsEventID)
	assert.Equal(t, original.ID, *adjustment.AdjustsEventID)

	result, err := svc.VerifyIntegrity(context.Background(), adjustment.ID)
	require.NoError(t, err)
	assert.True(t, result.Intact)
}

func TestRecordAdjustmentUnknownOriginal(t *testing.T) {
	svc, _, node := setupEventService(t)

	_, err := svc.RecordAdjustment(context.Background(), domain.RecordAdjustmentRequest{
		AdjustsEventID:   node.Generate().String(),
		AmountMinorUnits: -5000,
		SourceSystem:     "billing",
		ReferenceID:      "adj-1",
	})
	assert.ErrorIs(t, err, domain.ErrAdjustedEventMissing)
}

func TestEventsAreImmutableViaORM(t *testing.T) {
	svc, conn, _ := setupEventService(t)

	event, err := svc.RecordEvent(context.Background(), validRequest())
	require.NoError(t, err)

	err = conn.Model(&domain.FinancialEvent{ID: event.ID}).
		Update("amount_minor_units", 1).Error
	assert.ErrorIs(t, err, domain.ErrImmutableEvent)

	err = conn.Delete(&domain.FinancialEvent{ID: event.ID}).Error
	assert.ErrorIs(t, err, domain.ErrImmutableEvent)

	stored, err := svc.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45000), stored.AmountMinorUnits)
}

func TestMonthOf(t *testing.T) {
	// New York is still in December when UTC has rolled over.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	at := time.Date(2025, 12, 31, 23, 30, 0, 0, loc)
	assert.Equal(t, "2026-01", domain.MonthOf(at))
}
