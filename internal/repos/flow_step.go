package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type FlowStepRepo interface {
	Create(ctx context.Context, tx *gorm.DB, step *domain.FlowStep) (*domain.FlowStep, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.FlowStep, error)
	GetByFlowID(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) ([]*domain.FlowStep, error)
	GetLatestByFlowID(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) (*domain.FlowStep, error)
	UpdateState(ctx context.Context, tx *gorm.DB, id uuid.UUID, state domain.StepState) error
}

type flowStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowStepRepo(db *gorm.DB, baseLog *logger.Logger) FlowStepRepo {
	return &flowStepRepo{db: db, log: baseLog.With("repo", "FlowStepRepo")}
}

func (r *flowStepRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *flowStepRepo) Create(ctx context.Context, tx *gorm.DB, step *domain.FlowStep) (*domain.FlowStep, error) {
	if err := r.conn(tx).WithContext(ctx).Create(step).Error; err != nil {
		return nil, err
	}
	return step, nil
}

func (r *flowStepRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.FlowStep, error) {
	var step domain.FlowStep
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&step).Error
	if err != nil {
		return nil, err
	}
	if step.ID == uuid.Nil {
		return nil, nil
	}
	return &step, nil
}

func (r *flowStepRepo) GetByFlowID(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) ([]*domain.FlowStep, error) {
	var out []*domain.FlowStep
	err := r.conn(tx).WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("iteration ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetLatestByFlowID returns the highest-iteration step, or nil when the flow
// has no steps yet.
func (r *flowStepRepo) GetLatestByFlowID(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) (*domain.FlowStep, error) {
	var step domain.FlowStep
	err := r.conn(tx).WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("iteration DESC").
		Limit(1).
		Find(&step).Error
	if err != nil {
		return nil, err
	}
	if step.ID == uuid.Nil {
		return nil, nil
	}
	return &step, nil
}

func (r *flowStepRepo) UpdateState(ctx context.Context, tx *gorm.DB, id uuid.UUID, state domain.StepState) error {
	return r.conn(tx).WithContext(ctx).
		Model(&domain.FlowStep{}).
		Where("id = ?", id).
		Update("state", state).Error
}
