package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type CampaignSpecRepo interface {
	Create(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec) (*domain.CampaignSpec, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignSpec, error)
	GetByIDFull(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignSpec, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.CampaignSpec, error)
	AppendBaseAssets(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec, assets []*domain.Asset) error
	AppendTargetGroups(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec, groups []*domain.TargetGroup) error
}

type campaignSpecRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCampaignSpecRepo(db *gorm.DB, baseLog *logger.Logger) CampaignSpecRepo {
	return &campaignSpecRepo{db: db, log: baseLog.With("repo", "CampaignSpecRepo")}
}

func (r *campaignSpecRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *campaignSpecRepo) Create(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec) (*domain.CampaignSpec, error) {
	if err := r.conn(tx).WithContext(ctx).Create(spec).Error; err != nil {
		return nil, err
	}
	return spec, nil
}

func (r *campaignSpecRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignSpec, error) {
	var spec domain.CampaignSpec
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&spec).Error
	if err != nil {
		return nil, err
	}
	if spec.ID == uuid.Nil {
		return nil, nil
	}
	return &spec, nil
}

// GetByIDFull preloads base assets and target groups alongside the spec.
func (r *campaignSpecRepo) GetByIDFull(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignSpec, error) {
	var spec domain.CampaignSpec
	err := r.conn(tx).WithContext(ctx).
		Preload("BaseAssets").
		Preload("TargetGroups").
		Where("id = ?", id).
		Limit(1).
		Find(&spec).Error
	if err != nil {
		return nil, err
	}
	if spec.ID == uuid.Nil {
		return nil, nil
	}
	return &spec, nil
}

func (r *campaignSpecRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.CampaignSpec, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.CampaignSpec
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

func (r *campaignSpecRepo) AppendBaseAssets(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec, assets []*domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Model(spec).Association("BaseAssets").Append(assets)
}

func (r *campaignSpecRepo) AppendTargetGroups(ctx context.Context, tx *gorm.DB, spec *domain.CampaignSpec, groups []*domain.TargetGroup) error {
	if len(groups) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Model(spec).Association("TargetGroups").Append(groups)
}
