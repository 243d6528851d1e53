package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aceylabs/finledger/internal/audit/domain"
	auditrepo "github.com/aceylabs/finledger/internal/audit/repository"
	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/migration"
	"github.com/aceylabs/finledger/pkg/db/pagination"
)

func setupAuditService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
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
	clk := clock.NewFakeClock(time.Date(2026, 1, 20, 14, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	return svc, conn, clk
}

func TestRecordCapturesActorFromContext(t *testing.T) {
	svc, conn, _ := setupAuditService(t)

	ctx := auditctx.WithActor(context.Background(), string(domain.ActorTypeAPIKey), "api_key:alice")
	ctx = auditctx.WithRequestID(ctx, "req-42")
	require.NoError(t, svc.Record(ctx, domain.Change{
		Action:      "partner.created",
		TargetTable: "partner_profiles",
		RecordID:    "123",
		NewValues:   map[string]any{"name": "Acme"},
	}))

	var entry domain.Entry
	require.NoError(t, conn.First(&entry).Error)
	assert.Equal(t, "api_key", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "api_key:alice", *entry.ActorID)
	assert.Equal(t, "success", entry.Outcome)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-42", *entry.RequestID)
	assert.Equal(t, EntryHash(&entry), entry.IntegrityHash)
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, conn, _ := setupAuditService(t)

	require.NoError(t, svc.Record(context.Background(), domain.Change{
		Action: "ledger.calculation_run",
	}))

	var entry domain.Entry
	require.NoError(t, conn.First(&entry).Error)
	assert.Equal(t, string(domain.ActorTypeSystem), entry.ActorType)
	assert.Equal(t, "unknown", entry.TargetTable)
}

func TestRecordRejectedKeepsCause(t *testing.T) {
	svc, conn, _ := setupAuditService(t)

	require.NoError(t, svc.RecordRejected(context.Background(), domain.Change{
		Action:      "batch.approval_denied",
		TargetTable: "payout_batches",
		RecordID:    "77",
	}, errors.New("unauthorized_approver")))

	var entry domain.Entry
	require.NoError(t, conn.First(&entry).Error)
	assert.Equal(t, "rejected", entry.Outcome)
	assert.Equal(t, "unauthorized_approver", entry.NewValues["rejection_cause"])
}

func TestRecordRequiresAction(t *testing.T) {
	svc, _, _ := setupAuditService(t)
	assert.ErrorIs(t, svc.Record(context.Background(), domain.Change{}), domain.ErrInvalidAction)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, clk := setupAuditService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, domain.Change{
			Action:      "event.recorded",
			TargetTable: "financial_events",
			RecordID:    fmt.Sprintf("%d", i),
		}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.Record(ctx, domain.Change{
		Action:      "batch.created",
		TargetTable: "payout_batches",
		RecordID:    "b1",
	}))

	resp, err := svc.List(ctx, domain.ListRequest{Action: "batch.created"})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "b1", *resp.Entries[0].RecordID)

	// Page through the event entries two at a time.
	var seen []string
	req := domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     "event.recorded",
	}
	for {
		resp, err := svc.List(ctx, req)
		require.NoError(t, err)
		for _, e := range resp.Entries {
			seen = append(seen, *e.RecordID)
		}
		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	assert.Len(t, seen, 5)
}

func TestListStopsAtRetentionHorizon(t *testing.T) {
	svc, _, clk := setupAuditService(t)

	require.NoError(t, svc.Record(context.Background(), domain.Change{
		Action: "partner.created", TargetTable: "partner_profiles", RecordID: "old",
	}))

	// Eight years later the first entry is past the retention window.
	clk.Advance(8 * 365 * 24 * time.Hour)
	require.NoError(t, svc.Record(context.Background(), domain.Change{
		Action: "partner.created", TargetTable: "partner_profiles", RecordID: "recent",
	}))

	resp, err := svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	require.NotNil(t, resp.Entries[0].RecordID)
	assert.Equal(t, "recent", *resp.Entries[0].RecordID)
}

func TestListRejectsInvertedTimeRange(t *testing.T) {
	svc, _, clk := setupAuditService(t)

	start := clk.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), domain.ListRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}
