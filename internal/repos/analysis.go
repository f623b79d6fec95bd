package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type AnalysisRepo interface {
	Create(ctx context.Context, tx *gorm.DB, result *domain.AnalysisResult) (*domain.AnalysisResult, error)
	GetByStepID(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*domain.AnalysisResult, error)
	GetByStepIDs(ctx context.Context, tx *gorm.DB, stepIDs []uuid.UUID) ([]*domain.AnalysisResult, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo")}
}

func (r *analysisRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *analysisRepo) Create(ctx context.Context, tx *gorm.DB, result *domain.AnalysisResult) (*domain.AnalysisResult, error) {
	if err := r.conn(tx).WithContext(ctx).Create(result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *analysisRepo) GetByStepID(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	err := r.conn(tx).WithContext(ctx).Where("step_id = ?", stepID).Limit(1).Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (r *analysisRepo) GetByStepIDs(ctx context.Context, tx *gorm.DB, stepIDs []uuid.UUID) ([]*domain.AnalysisResult, error) {
	var out []*domain.AnalysisResult
	if len(stepIDs) == 0 {
		return out, nil
	}
	err := r.conn(tx).WithContext(ctx).Where("step_id IN ?", stepIDs).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
