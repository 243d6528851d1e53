package repository

import (
	"context"
	"errors"

	"github.com/aceylabs/finledger/internal/payout/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, batch *domain.PayoutBatch) error {
	return tx.WithContext(ctx).Create(batch).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.PayoutBatch, error) {
	var batch domain.PayoutBatch
	err := tx.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]domain.PayoutBatch, error) {
	stmt := tx.WithContext(ctx).Model(&domain.PayoutBatch{})
	if filter.Month != "" {
		stmt = stmt.Where("month = ?", filter.Month)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = stmt.Order("created_at_unix desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var batches []domain.PayoutBatch
	if err := stmt.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repo) CountByStatus(ctx context.Context, tx *gorm.DB, status domain.BatchStatus) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&domain.PayoutBatch{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// Transition is the single-writer primitive: the WHERE clause on the
// current status makes concurrent callers race on the database row,
// and only one can win.
func (r *repo) Transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to domain.BatchStatus, set map[string]any) (int64, error) {
	updates := map[string]any{"status": to}
	for k, v := range set {
		updates[k] = v
	}
	result := tx.WithContext(ctx).
		Model(&domain.PayoutBatch{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}
