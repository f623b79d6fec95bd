package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type AssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, assets []*domain.Asset) ([]*domain.Asset, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Asset, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Asset, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Asset, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *assetRepo) Create(ctx context.Context, tx *gorm.DB, assets []*domain.Asset) ([]*domain.Asset, error) {
	if len(assets) == 0 {
		return []*domain.Asset{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *assetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&asset).Error
	if err != nil {
		return nil, err
	}
	if asset.ID == uuid.Nil {
		return nil, nil
	}
	return &asset, nil
}

func (r *assetRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Asset, error) {
	var out []*domain.Asset
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Asset, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.Asset
	err := r.conn(tx).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Model(&domain.Asset{}).
		Where("id = ?", id).
		Updates(updates).Error
}
