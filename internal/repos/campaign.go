package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type CampaignRepo interface {
	Create(ctx context.Context, tx *gorm.DB, campaign *domain.Campaign) (*domain.Campaign, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Campaign, error)
	GetBySpecID(ctx context.Context, tx *gorm.DB, specID uuid.UUID) ([]*domain.Campaign, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Campaign, error)
}

type campaignRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCampaignRepo(db *gorm.DB, baseLog *logger.Logger) CampaignRepo {
	return &campaignRepo{db: db, log: baseLog.With("repo", "CampaignRepo")}
}

func (r *campaignRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *campaignRepo) Create(ctx context.Context, tx *gorm.DB, campaign *domain.Campaign) (*domain.Campaign, error) {
	if err := r.conn(tx).WithContext(ctx).Create(campaign).Error; err != nil {
		return nil, err
	}
	return campaign, nil
}

func (r *campaignRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&campaign).Error
	if err != nil {
		return nil, err
	}
	if campaign.ID == uuid.Nil {
		return nil, nil
	}
	return &campaign, nil
}

func (r *campaignRepo) GetBySpecID(ctx context.Context, tx *gorm.DB, specID uuid.UUID) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	err := r.conn(tx).WithContext(ctx).
		Where("campaign_spec_id = ?", specID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *campaignRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.Campaign
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
