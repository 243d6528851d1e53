package repository

import (
	"context"
	"errors"

	"github.com/aceylabs/finledger/internal/event/domain"
	"github.com/aceylabs/finledger/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert uses raw SQL so the model's update hooks never run and the
// unique (source_system, reference_id) index decides dedupe atomically.
func (r *repo) Insert(ctx context.Context, tx *gorm.DB, event *domain.FinancialEvent) error {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO financial_events (
			id, type, category, amount_minor_units, currency, partner_id,
			month, occurred_at, occurred_at_unix, occurred_date,
			description, source_system, reference_id, status,
			adjusts_event_id, integrity_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Type,
		event.Category,
		event.AmountMinorUnits,
		event.Currency,
		event.PartnerID,
		event.Month,
		event.OccurredAt,
		event.OccurredAtUnix,
		event.OccurredDate,
		event.Description,
		event.SourceSystem,
		event.ReferenceID,
		event.Status,
		event.AdjustsEventID,
		event.IntegrityHash,
		event.CreatedAt,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return domain.ErrDuplicateReference
		}
		return result.Error
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.FinancialEvent, error) {
	var event domain.FinancialEvent
	err := tx.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]domain.FinancialEvent, error) {
	stmt := tx.WithContext(ctx).Model(&domain.FinancialEvent{})
	if filter.PartnerID != nil {
		stmt = stmt.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.Month != "" {
		stmt = stmt.Where("month = ?", filter.Month)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	stmt = stmt.Order("occurred_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var events []domain.FinancialEvent
	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) ConfirmedForPartnerMonth(ctx context.Context, tx *gorm.DB, partnerID snowflake.ID, month string) ([]domain.FinancialEvent, error) {
	var events []domain.FinancialEvent
	err := tx.WithContext(ctx).
		Where("partner_id = ? AND month = ? AND status = ?", partnerID, month, domain.EventStatusConfirmed).
		Order("occurred_at asc, id asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) ActivePartnerIDsForMonth(ctx context.Context, tx *gorm.DB, month string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := tx.WithContext(ctx).
		Model(&domain.FinancialEvent{}).
		Distinct("partner_id").
		Where("month = ? AND status = ? AND partner_id IS NOT NULL", month, domain.EventStatusConfirmed).
		Order("partner_id asc").
		Pluck("partner_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
