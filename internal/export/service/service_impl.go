package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/export/domain"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	"github.com/aceylabs/finledger/internal/observability/metrics"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
	"github.com/aceylabs/finledger/pkg/integrity"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	LedgerRepo ledgerdomain.Repository
	BatchSvc   payoutdomain.Service
	PartnerSvc partnerdomain.Service
	AuditSvc   auditdomain.Service
	Metrics    *metrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	ledgerRepo ledgerdomain.Repository
	batchSvc   payoutdomain.Service
	partnerSvc partnerdomain.Service
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("export.service"),
		ledgerRepo: p.LedgerRepo,
		batchSvc:   p.BatchSvc,
		partnerSvc: p.PartnerSvc,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) Generate(ctx context.Context, batchID snowflake.ID, format domain.Format) (*domain.Document, error) {
	batch, err := s.batchSvc.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	switch batch.Status {
	case payoutdomain.BatchStatusApproved, payoutdomain.BatchStatusProcessing, payoutdomain.BatchStatusCompleted:
	default:
		return nil, domain.ErrBatchNotApproved
	}

	lines, err := s.buildLines(ctx, batch)
	if err != nil {
		return nil, err
	}

	var doc *domain.Document
	switch format {
	case domain.FormatCSV:
		doc, err = renderCSV(batch, lines)
	case domain.FormatXLSX:
		doc, err = renderXLSX(batch, lines)
	case domain.FormatPDF:
		doc, err = renderPDF(batch, lines)
	default:
		return nil, domain.ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ExportsGenerated.WithLabelValues(string(format)).Inc()
	_ = s.auditSvc.Record(ctx, auditdomain.Change{
		Action:      "export.generated",
		TargetTable: payoutdomain.PayoutBatch{}.TableName(),
		RecordID:    batchID.String(),
		NewValues: map[string]any{
			"format":       string(format),
			"filename":     doc.Filename,
			"line_count":   len(lines),
			"total_amount": batch.TotalAmount,
		},
	})
	s.log.Info("export generated",
		zap.String("batch_id", batchID.String()),
		zap.String("format", string(format)),
		zap.Int("lines", len(lines)))
	return doc, nil
}

// buildLines loads the batch's ledgers in id order, re-verifies the
// batch hash taken at creation, and resolves partner names.
func (s *Service) buildLines(ctx context.Context, batch *payoutdomain.PayoutBatch) ([]domain.Line, error) {
	ledgers, err := s.ledgerRepo.List(ctx, s.db, ledgerdomain.ListFilter{BatchID: &batch.ID})
	if err != nil {
		return nil, err
	}

	fields := make([]integrity.Field, 0, len(ledgers)*2)
	for _, l := range ledgers {
		fields = append(fields,
			integrity.String("ledger_id", l.ID),
			integrity.Int64("payout_amount", l.PayoutAmount),
		)
	}
	if integrity.Sum(fields...) != batch.BatchHash {
		return nil, domain.ErrBatchDrift
	}

	lines := make([]domain.Line, 0, len(ledgers))
	for _, l := range ledgers {
		partner, err := s.partnerSvc.GetByID(ctx, l.PartnerID)
		if err != nil {
			return nil, err
		}
		payee := partner.PayoutReference
		if payee == "" {
			payee = partner.Email
		}
		lines = append(lines, domain.Line{
			Payee:     payee,
			Amount:    MajorUnits(l.PayoutAmount),
			Currency:  l.Currency,
			Memo:      fmt.Sprintf("Payout for %s – %s", l.Month, partner.Name),
			Reference: l.ID,
		})
	}
	return lines, nil
}

// MajorUnits formats integer minor units with fixed two decimals.
func MajorUnits(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
