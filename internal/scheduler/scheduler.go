package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/clock"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	"github.com/aceylabs/finledger/internal/scheduler/guard"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// Config controls how often the scheduler wakes up and how long one
// calculation run may take.
type Config struct {
	TickInterval time.Duration
	RunTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Hour,
		RunTimeout:   10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
	Config    Config `optional:"true"`
}

// Scheduler settles the previous month once it has closed. Runs are
// idempotent, so waking up repeatedly in the same month is harmless:
// an unchanged month recomputes to the same calculation hash.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service

	lastSettled string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.LedgerSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler"),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("initial settlement run failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("settlement run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce settles the most recent closed month if it has not been
// settled by this process yet.
func (s *Scheduler) RunOnce(parent context.Context) error {
	now := s.clock.Now()
	month := guard.PreviousMonth(now)
	if month == s.lastSettled {
		return nil
	}
	if err := guard.EnsureMonthSettleable(month, now); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()
	ctx = auditctx.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")

	summary, err := s.ledgerSvc.CalculateMonth(ctx, month)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrAlreadyCalculating) {
			s.log.Info("calculation already running elsewhere", zap.String("month", month))
			return nil
		}
		return err
	}

	s.lastSettled = month
	s.log.Info("scheduled settlement completed",
		zap.String("month", month),
		zap.Int("ledgers_computed", summary.LedgersComputed),
		zap.Int("failures", len(summary.Failures)))
	return nil
}
