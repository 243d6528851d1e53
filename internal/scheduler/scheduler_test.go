package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/clock"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
)

type calcRecorder struct {
	months []string
	actors []string
	err    error
}

func (c *calcRecorder) CalculateMonth(ctx context.Context, month string) (*ledgerdomain.RunSummary, error) {
	c.months = append(c.months, month)
	actorType, actorID := auditctx.ActorFromContext(ctx)
	c.actors = append(c.actors, actorType+":"+actorID)
	if c.err != nil {
		return nil, c.err
	}
	return &ledgerdomain.RunSummary{Month: month}, nil
}

func (c *calcRecorder) GetByID(ctx context.Context, id string) (*ledgerdomain.MonthlyLedger, error) {
	return nil, ledgerdomain.ErrNotFound
}

func (c *calcRecorder) List(ctx context.Context, filter ledgerdomain.ListFilter) ([]ledgerdomain.MonthlyLedger, error) {
	return nil, nil
}

func newScheduler(t *testing.T, clk clock.Clock, svc ledgerdomain.Service) *Scheduler {
	t.Helper()
	s, err := New(Params{Log: zap.NewNop(), Clock: clk, LedgerSvc: svc})
	require.NoError(t, err)
	return s
}

func TestRunOnceSettlesPreviousMonth(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC))
	calc := &calcRecorder{}
	s := newScheduler(t, clk, calc)

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, []string{"2026-01"}, calc.months)
	assert.Equal(t, "system:scheduler", calc.actors[0])
}

func TestRunOnceSkipsSettledMonth(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC))
	calc := &calcRecorder{}
	s := newScheduler(t, clk, calc)

	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, calc.months, 1)

	// A new month opens and the previous one gets settled.
	clk.Advance(29 * 24 * time.Hour)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"2026-01", "2026-02"}, calc.months)
}

func TestRunOnceRetriesAfterFailure(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC))
	calc := &calcRecorder{err: errors.New("db down")}
	s := newScheduler(t, clk, calc)

	require.Error(t, s.RunOnce(context.Background()))
	calc.err = nil
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, calc.months, 2)
}

func TestRunOnceToleratesConcurrentRunner(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC))
	calc := &calcRecorder{err: ledgerdomain.ErrAlreadyCalculating}
	s := newScheduler(t, clk, calc)

	// Another instance holding the month lock is not an error.
	require.NoError(t, s.RunOnce(context.Background()))
}

func TestNewValidatesParams(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(time.Now())})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.TickInterval)
	assert.Equal(t, 10*time.Minute, cfg.RunTimeout)

	cfg = Config{TickInterval: time.Minute, RunTimeout: time.Second}.withDefaults()
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, time.Second, cfg.RunTimeout)
}
