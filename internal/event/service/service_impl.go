package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/event/domain"
	"github.com/aceylabs/finledger/internal/observability/metrics"
	"github.com/aceylabs/finledger/pkg/integrity"
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
		log:      p.Log.Named("event.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		finance:  p.Finance,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) RecordEvent(ctx context.Context, req domain.RecordEventRequest) (*domain.FinancialEvent, error) {
	event, err := s.buildEvent(req)
	if err != nil {
		s.rejected(ctx, req, err)
		return nil, err
	}
	return s.append(ctx, event)
}

func (s *Service) RecordAdjustment(ctx context.Context, req domain.RecordAdjustmentRequest) (*domain.FinancialEvent, error) {
	adjustsID, err := snowflake.ParseString(strings.TrimSpace(req.AdjustsEventID))
	if err != nil {
		return nil, domain.ErrAdjustedEventMissing
	}

	original, err := s.repo.FindByID(ctx, s.db, adjustsID)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrAdjustedEventMissing
		}
		return nil, err
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = original.Category
	}

	// An adjustment inherits the corrected event's partner, currency
	// and month so settlement math nets the two rows together.
	event, err := s.buildEvent(domain.RecordEventRequest{
		Type:             string(domain.EventTypeAdjustment),
		Category:         category,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         original.Currency,
		PartnerID:        pointerString(original.PartnerID),
		OccurredAt:       original.OccurredAt.Format(time.RFC3339),
		Description:      req.Description,
		SourceSystem:     req.SourceSystem,
		ReferenceID:      req.ReferenceID,
		Status:           string(domain.EventStatusConfirmed),
	})
	if err != nil {
		return nil, err
	}
	event.AdjustsEventID = &original.ID
	event.IntegrityHash = hashEvent(event)

	return s.append(ctx, event)
}

func (s *Service) VerifyIntegrity(ctx context.Context, eventID snowflake.ID) (*domain.VerifyResult, error) {
	event, err := s.repo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	computed := hashEvent(event)
	return &domain.VerifyResult{
		EventID:      event.ID,
		Intact:       computed == event.IntegrityHash,
		StoredHash:   event.IntegrityHash,
		ComputedHash: computed,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, eventID snowflake.ID) (*domain.FinancialEvent, error) {
	return s.repo.FindByID(ctx, s.db, eventID)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.FinancialEvent, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) buildEvent(req domain.RecordEventRequest) (*domain.FinancialEvent, error) {
	eventType := domain.EventType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !eventType.Valid() {
		return nil, domain.ErrInvalidType
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, domain.ErrInvalidCategory
	}
	if req.AmountMinorUnits == 0 {
		return nil, domain.ErrInvalidAmount
	}
	// Revenue is never negative. Money coming back out is an expense
	// event in the refund category, which keeps the stream append-only
	// and the netting explicit.
	if eventType == domain.EventTypeRevenue && req.AmountMinorUnits < 0 {
		return nil, domain.ErrNegativeRevenue
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !s.finance.Get().SupportsCurrency(currency) {
		return nil, domain.ErrUnsupportedCurrency
	}
	sourceSystem := strings.TrimSpace(req.SourceSystem)
	if sourceSystem == "" {
		return nil, domain.ErrInvalidSourceSystem
	}
	referenceID := strings.TrimSpace(req.ReferenceID)
	if referenceID == "" {
		return nil, domain.ErrInvalidReferenceID
	}

	var partnerID *snowflake.ID
	if strings.TrimSpace(req.PartnerID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(req.PartnerID))
		if err != nil {
			return nil, domain.ErrInvalidPartnerID
		}
		partnerID = &id
	}

	occurredAt := s.clock.Now()
	if strings.TrimSpace(req.OccurredAt) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(req.OccurredAt))
		if err != nil {
			return nil, domain.ErrInvalidOccurredAt
		}
		occurredAt = parsed.UTC()
	}

	status := domain.EventStatusConfirmed
	if strings.TrimSpace(req.Status) != "" {
		status = domain.EventStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if !status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
	}

	event := &domain.FinancialEvent{
		ID:               s.genID.Generate(),
		Type:             eventType,
		Category:         category,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         currency,
		PartnerID:        partnerID,
		Month:            domain.MonthOf(occurredAt),
		OccurredAt:       occurredAt,
		OccurredAtUnix:   occurredAt.Unix(),
		OccurredDate:     occurredAt.Format("2006-01-02"),
		Description:      strings.TrimSpace(req.Description),
		SourceSystem:     sourceSystem,
		ReferenceID:      referenceID,
		Status:           status,
		CreatedAt:        s.clock.Now(),
	}
	event.IntegrityHash = hashEvent(event)
	return event, nil
}

func (s *Service) append(ctx context.Context, event *domain.FinancialEvent) (*domain.FinancialEvent, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, event); err != nil {
			return err
		}
		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "event.recorded",
			TargetTable: domain.FinancialEvent{}.TableName(),
			RecordID:    event.ID.String(),
			NewValues: map[string]any{
				"type":               string(event.Type),
				"category":           event.Category,
				"amount_minor_units": event.AmountMinorUnits,
				"currency":           event.Currency,
				"month":              event.Month,
				"source_system":      event.SourceSystem,
				"reference_id":       event.ReferenceID,
			},
		})
	})
	if err != nil {
		if err == domain.ErrDuplicateReference {
			s.log.Info("duplicate event reference ignored",
				zap.String("source_system", event.SourceSystem),
				zap.String("reference_id", event.ReferenceID))
		}
		return nil, err
	}

	s.metrics.EventsRecorded.WithLabelValues(string(event.Type), event.SourceSystem).Inc()
	s.log.Info("financial event recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("type", string(event.Type)),
		zap.String("month", event.Month),
		zap.Int64("amount_minor_units", event.AmountMinorUnits))
	return event, nil
}

func (s *Service) rejected(ctx context.Context, req domain.RecordEventRequest, cause error) {
	s.metrics.EventsRejected.WithLabelValues(cause.Error()).Inc()
	_ = s.auditSvc.RecordRejected(ctx, auditdomain.Change{
		Action:      "event.recorded",
		TargetTable: domain.FinancialEvent{}.TableName(),
		NewValues: map[string]any{
			"type":               req.Type,
			"category":           req.Category,
			"amount_minor_units": req.AmountMinorUnits,
			"currency":           req.Currency,
			"source_system":      req.SourceSystem,
			"reference_id":       req.ReferenceID,
		},
	}, cause)
}

// hashEvent covers every immutable field, in a fixed order.
func hashEvent(e *domain.FinancialEvent) string {
	return integrity.Sum(
		integrity.String("id", e.ID.String()),
		integrity.String("type", string(e.Type)),
		integrity.String("category", e.Category),
		integrity.Int64("amount_minor_units", e.AmountMinorUnits),
		integrity.String("currency", e.Currency),
		integrity.String("partner_id", pointerString(e.PartnerID)),
		integrity.String("month", e.Month),
		integrity.Int64("occurred_at_unix", e.OccurredAtUnix),
		integrity.String("occurred_date", e.OccurredDate),
		integrity.String("source_system", e.SourceSystem),
		integrity.String("reference_id", e.ReferenceID),
		integrity.String("status", string(e.Status)),
		integrity.String("adjusts_event_id", pointerString(e.AdjustsEventID)),
	)
}

func pointerString(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
