package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/partner/domain"
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
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	finance  *config.FinanceConfigHolder
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("partner.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		finance:  p.Finance,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.PartnerProfile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validateSharePct(req.RevenueSharePct); err != nil {
		return nil, err
	}
	if req.MinimumPayout < 0 {
		return nil, domain.ErrInvalidMinPayout
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !s.finance.Get().SupportsCurrency(currency) {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	partner := &domain.PartnerProfile{
		ID:              s.genID.Generate(),
		Name:            name,
		Email:           email,
		RevenueSharePct: req.RevenueSharePct,
		MinimumPayout:   req.MinimumPayout,
		Currency:        currency,
		Status:          domain.PartnerStatusActive,
		PayoutMethod:    strings.TrimSpace(req.PayoutMethod),
		PayoutReference: strings.TrimSpace(req.PayoutReference),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, partner); err != nil {
			return err
		}
		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "partner.created",
			TargetTable: domain.PartnerProfile{}.TableName(),
			RecordID:    partner.ID.String(),
			NewValues: map[string]any{
				"name":              partner.Name,
				"email":             partner.Email,
				"revenue_share_pct": partner.RevenueSharePct,
				"minimum_payout":    partner.MinimumPayout,
				"currency":          partner.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("partner created",
		zap.String("partner_id", partner.ID.String()),
		zap.Int64("revenue_share_pct", partner.RevenueSharePct))
	return partner, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.PartnerProfile, error) {
	var updated *domain.PartnerProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		partner, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		old := snapshot(partner)

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			partner.Name = name
		}
		if req.Email != nil {
			email, err := normalizeEmail(*req.Email)
			if err != nil {
				return err
			}
			partner.Email = email
		}
		if req.RevenueSharePct != nil {
			if err := validateSharePct(*req.RevenueSharePct); err != nil {
				return err
			}
			partner.RevenueSharePct = *req.RevenueSharePct
		}
		if req.MinimumPayout != nil {
			if *req.MinimumPayout < 0 {
				return domain.ErrInvalidMinPayout
			}
			partner.MinimumPayout = *req.MinimumPayout
		}
		if req.Status != nil {
			status := domain.PartnerStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
			if !status.Valid() {
				return domain.ErrInvalidStatus
			}
			partner.Status = status
		}
		if req.PayoutMethod != nil {
			partner.PayoutMethod = strings.TrimSpace(*req.PayoutMethod)
		}
		if req.PayoutReference != nil {
			partner.PayoutReference = strings.TrimSpace(*req.PayoutReference)
		}
		partner.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, partner); err != nil {
			return err
		}
		if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "partner.updated",
			TargetTable: domain.PartnerProfile{}.TableName(),
			RecordID:    partner.ID.String(),
			OldValues:   old,
			NewValues:   snapshot(partner),
		}); err != nil {
			return err
		}
		updated = partner
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.PartnerProfile, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.PartnerProfile, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, s.db, filter)
}

func validateSharePct(pct int64) error {
	if pct < 0 || pct > 100 {
		return domain.ErrInvalidSharePct
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

func snapshot(p *domain.PartnerProfile) map[string]any {
	return map[string]any{
		"name":              p.Name,
		"email":             p.Email,
		"revenue_share_pct": p.RevenueSharePct,
		"minimum_payout":    p.MinimumPayout,
		"currency":          p.Currency,
		"status":            string(p.Status),
		"payout_method":     p.PayoutMethod,
		"payout_reference":  p.PayoutReference,
	}
}
