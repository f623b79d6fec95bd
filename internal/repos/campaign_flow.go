package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type CampaignFlowRepo interface {
	Create(ctx context.Context, tx *gorm.DB, flows []*domain.CampaignFlow) ([]*domain.CampaignFlow, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignFlow, error)
	GetByCampaignID(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) ([]*domain.CampaignFlow, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.CampaignFlow, error)
}

type campaignFlowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCampaignFlowRepo(db *gorm.DB, baseLog *logger.Logger) CampaignFlowRepo {
	return &campaignFlowRepo{db: db, log: baseLog.With("repo", "CampaignFlowRepo")}
}

func (r *campaignFlowRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *campaignFlowRepo) Create(ctx context.Context, tx *gorm.DB, flows []*domain.CampaignFlow) ([]*domain.CampaignFlow, error) {
	if len(flows) == 0 {
		return []*domain.CampaignFlow{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&flows).Error; err != nil {
		return nil, err
	}
	return flows, nil
}

func (r *campaignFlowRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CampaignFlow, error) {
	var flow domain.CampaignFlow
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&flow).Error
	if err != nil {
		return nil, err
	}
	if flow.ID == uuid.Nil {
		return nil, nil
	}
	return &flow, nil
}

func (r *campaignFlowRepo) GetByCampaignID(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) ([]*domain.CampaignFlow, error) {
	var out []*domain.CampaignFlow
	err := r.conn(tx).WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns every flow ordered by creation. Job discovery scans this
// list, so the ordering here fixes the tie break between equal priorities.
func (r *campaignFlowRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.CampaignFlow, error) {
	var out []*domain.CampaignFlow
	err := r.conn(tx).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
