package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aceylabs/finledger/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *domain.APIKey) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.WithContext(ctx).
		Where("key_id = ?", keyID).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	if err := db.WithContext(ctx).Order("created_at desc").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, id int64, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, keyID string) error {
	result := db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("key_id = ? AND is_active = ?", keyID, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
