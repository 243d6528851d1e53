package repository

import (
	"context"
	"errors"

	"github.com/aceylabs/finledger/internal/partner/domain"
	"github.com/aceylabs/finledger/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, partner *domain.PartnerProfile) error {
	if err := tx.WithContext(ctx).Create(partner).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, partner *domain.PartnerProfile) error {
	if err := tx.WithContext(ctx).Save(partner).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.PartnerProfile, error) {
	var partner domain.PartnerProfile
	err := tx.WithContext(ctx).Where("id = ?", id).First(&partner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &partner, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]domain.PartnerProfile, error) {
	stmt := tx.WithContext(ctx).Model(&domain.PartnerProfile{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = stmt.Order("name asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var partners []domain.PartnerProfile
	if err := stmt.Find(&partners).Error; err != nil {
		return nil, err
	}
	return partners, nil
}
