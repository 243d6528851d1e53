package repository

import (
	"context"
	"errors"

	"github.com/aceylabs/finledger/internal/anomaly/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, flag *domain.FinancialFlag) error {
	return tx.WithContext(ctx).Create(flag).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, flag *domain.FinancialFlag) error {
	return tx.WithContext(ctx).Save(flag).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.FinancialFlag, error) {
	var flag domain.FinancialFlag
	err := tx.WithContext(ctx).Where("id = ?", id).First(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &flag, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]domain.FinancialFlag, error) {
	stmt := tx.WithContext(ctx).Model(&domain.FinancialFlag{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		stmt = stmt.Where("severity = ?", filter.Severity)
	}
	if filter.AffectedEntityID != "" {
		stmt = stmt.Where("affected_entity_id = ?", filter.AffectedEntityID)
	}
	stmt = stmt.Order("raised_at_unix desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var flags []domain.FinancialFlag
	if err := stmt.Find(&flags).Error; err != nil {
		return nil, err
	}
	return flags, nil
}

func (r *repo) CountByStatus(ctx context.Context, tx *gorm.DB, status domain.FlagStatus) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&domain.FinancialFlag{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
