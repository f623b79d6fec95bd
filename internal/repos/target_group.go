package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type TargetGroupRepo interface {
	Create(ctx context.Context, tx *gorm.DB, groups []*domain.TargetGroup) ([]*domain.TargetGroup, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.TargetGroup, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.TargetGroup, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.TargetGroup, error)
}

type targetGroupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTargetGroupRepo(db *gorm.DB, baseLog *logger.Logger) TargetGroupRepo {
	return &targetGroupRepo{db: db, log: baseLog.With("repo", "TargetGroupRepo")}
}

func (r *targetGroupRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *targetGroupRepo) Create(ctx context.Context, tx *gorm.DB, groups []*domain.TargetGroup) ([]*domain.TargetGroup, error) {
	if len(groups) == 0 {
		return []*domain.TargetGroup{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *targetGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.TargetGroup, error) {
	var group domain.TargetGroup
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&group).Error
	if err != nil {
		return nil, err
	}
	if group.ID == uuid.Nil {
		return nil, nil
	}
	return &group, nil
}

func (r *targetGroupRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.TargetGroup, error) {
	var out []*domain.TargetGroup
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *targetGroupRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.TargetGroup, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.TargetGroup
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
