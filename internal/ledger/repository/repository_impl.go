package repository

import (
	"context"
	"errors"

	"github.com/aceylabs/finledger/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, tx *gorm.DB, ledger *domain.MonthlyLedger) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gross_revenue", "total_expenses", "net_revenue",
			"share_pct", "minimum_payout", "payout_amount",
			"currency", "payout_status", "event_count",
			"calculation_hash", "calculated_at_unix", "calculated_at_iso",
			"updated_at",
		}),
	}).Create(ledger).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id string) (*domain.MonthlyLedger, error) {
	var ledger domain.MonthlyLedger
	err := tx.WithContext(ctx).Where("id = ?", id).First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]domain.MonthlyLedger, error) {
	stmt := tx.WithContext(ctx).Model(&domain.MonthlyLedger{})
	if filter.Month != "" {
		stmt = stmt.Where("month = ?", filter.Month)
	}
	if filter.PartnerID != nil {
		stmt = stmt.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.PayoutStatus != "" {
		stmt = stmt.Where("payout_status = ?", filter.PayoutStatus)
	}
	if filter.BatchID != nil {
		stmt = stmt.Where("batch_id = ?", *filter.BatchID)
	}
	stmt = stmt.Order("month asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var ledgers []domain.MonthlyLedger
	if err := stmt.Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (r *repo) EligibleForMonth(ctx context.Context, tx *gorm.DB, month string) ([]domain.MonthlyLedger, error) {
	var ledgers []domain.MonthlyLedger
	err := tx.WithContext(ctx).
		Where("month = ? AND payout_status = ? AND batch_id IS NULL AND payout_amount > 0",
			month, domain.PayoutStatusPending).
		Order("id asc").
		Find(&ledgers).Error
	if err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (r *repo) RevenueHistory(ctx context.Context, tx *gorm.DB, partnerID snowflake.ID, beforeMonth string, lookback int) ([]domain.MonthlyRevenue, error) {
	var history []domain.MonthlyRevenue
	err := tx.WithContext(ctx).
		Model(&domain.MonthlyLedger{}).
		Select("month, gross_revenue").
		Where("partner_id = ? AND month < ?", partnerID, beforeMonth).
		Order("month desc").
		Limit(lookback).
		Scan(&history).Error
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (r *repo) AttachToBatch(ctx context.Context, tx *gorm.DB, ledgerIDs []string, batchID snowflake.ID) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE monthly_ledgers SET batch_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id IN ? AND payout_status = ? AND batch_id IS NULL`,
		batchID, ledgerIDs, domain.PayoutStatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) TransitionForBatch(ctx context.Context, tx *gorm.DB, batchID snowflake.ID, from, to domain.PayoutStatus) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE monthly_ledgers SET payout_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE batch_id = ? AND payout_status = ?`,
		to, batchID, from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DetachFromBatch(ctx context.Context, tx *gorm.DB, batchID snowflake.ID, to domain.PayoutStatus) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE monthly_ledgers SET batch_id = NULL, payout_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE batch_id = ?`,
		to, batchID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) PendingPayoutTotal(ctx context.Context, tx *gorm.DB) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).
		Model(&domain.MonthlyLedger{}).
		Where("payout_status = ?", domain.PayoutStatusPending).
		Select("COALESCE(SUM(payout_amount), 0)").
		Scan(&total).Error
	return total, err
}
