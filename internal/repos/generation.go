package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

type GenerationRepo interface {
	CreateResult(ctx context.Context, tx *gorm.DB, result *domain.GenerationResult) (*domain.GenerationResult, error)
	GetResultByStepID(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*domain.GenerationResult, error)
	DeleteResult(ctx context.Context, tx *gorm.DB, resultID uuid.UUID) error
	AppendSelectedAssets(ctx context.Context, tx *gorm.DB, result *domain.GenerationResult, assets []*domain.Asset) error

	CreateImages(ctx context.Context, tx *gorm.DB, images []*domain.GeneratedImage) ([]*domain.GeneratedImage, error)
	GetImageByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.GeneratedImage, error)
	GetImagesByResultID(ctx context.Context, tx *gorm.DB, resultID uuid.UUID) ([]*domain.GeneratedImage, error)
	UpdateImageTags(ctx context.Context, tx *gorm.DB, id uuid.UUID, tags []string) error
	AppendSourceAssets(ctx context.Context, tx *gorm.DB, image *domain.GeneratedImage, assets []*domain.Asset) error

	UpsertMetrics(ctx context.Context, tx *gorm.DB, metrics *domain.ImageMetrics) (*domain.ImageMetrics, error)
	GetMetricsByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*domain.ImageMetrics, error)
	GetMetricsByImageIDs(ctx context.Context, tx *gorm.DB, imageIDs []uuid.UUID) ([]*domain.ImageMetrics, error)
}

type generationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return &generationRepo{db: db, log: baseLog.With("repo", "GenerationRepo")}
}

func (r *generationRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *generationRepo) CreateResult(ctx context.Context, tx *gorm.DB, result *domain.GenerationResult) (*domain.GenerationResult, error) {
	if err := r.conn(tx).WithContext(ctx).Create(result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *generationRepo) GetResultByStepID(ctx context.Context, tx *gorm.DB, stepID uuid.UUID) (*domain.GenerationResult, error) {
	var result domain.GenerationResult
	err := r.conn(tx).WithContext(ctx).
		Preload("SelectedAssets").
		Where("step_id = ?", stepID).
		Limit(1).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

// DeleteResult removes a generation result together with its images and
// their metrics, so a failed generating pass can restart clean.
func (r *generationRepo) DeleteResult(ctx context.Context, tx *gorm.DB, resultID uuid.UUID) error {
	conn := r.conn(tx).WithContext(ctx)

	var imageIDs []uuid.UUID
	err := conn.Model(&domain.GeneratedImage{}).
		Where("generation_result_id = ?", resultID).
		Pluck("id", &imageIDs).Error
	if err != nil {
		return err
	}

	if len(imageIDs) > 0 {
		if err := conn.Where("image_id IN ?", imageIDs).Delete(&domain.ImageMetrics{}).Error; err != nil {
			return err
		}
		if err := conn.Exec("DELETE FROM generated_image_asset WHERE generated_image_id IN ?", imageIDs).Error; err != nil {
			return err
		}
		if err := conn.Where("id IN ?", imageIDs).Delete(&domain.GeneratedImage{}).Error; err != nil {
			return err
		}
	}

	if err := conn.Exec("DELETE FROM generation_result_asset WHERE generation_result_id = ?", resultID).Error; err != nil {
		return err
	}
	return conn.Where("id = ?", resultID).Delete(&domain.GenerationResult{}).Error
}

func (r *generationRepo) AppendSelectedAssets(ctx context.Context, tx *gorm.DB, result *domain.GenerationResult, assets []*domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Model(result).Association("SelectedAssets").Append(assets)
}

func (r *generationRepo) CreateImages(ctx context.Context, tx *gorm.DB, images []*domain.GeneratedImage) ([]*domain.GeneratedImage, error) {
	if len(images) == 0 {
		return []*domain.GeneratedImage{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *generationRepo) GetImageByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.GeneratedImage, error) {
	var image domain.GeneratedImage
	err := r.conn(tx).WithContext(ctx).
		Preload("SourceAssets").
		Where("id = ?", id).
		Limit(1).
		Find(&image).Error
	if err != nil {
		return nil, err
	}
	if image.ID == uuid.Nil {
		return nil, nil
	}
	return &image, nil
}

func (r *generationRepo) GetImagesByResultID(ctx context.Context, tx *gorm.DB, resultID uuid.UUID) ([]*domain.GeneratedImage, error) {
	var out []*domain.GeneratedImage
	err := r.conn(tx).WithContext(ctx).
		Preload("SourceAssets").
		Where("generation_result_id = ?", resultID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationRepo) UpdateImageTags(ctx context.Context, tx *gorm.DB, id uuid.UUID, tags []string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&domain.GeneratedImage{}).
		Where("id = ?", id).
		Update("metadata_tags", datatypes.JSONSlice[string](tags)).Error
}

func (r *generationRepo) AppendSourceAssets(ctx context.Context, tx *gorm.DB, image *domain.GeneratedImage, assets []*domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Model(image).Association("SourceAssets").Append(assets)
}

func (r *generationRepo) UpsertMetrics(ctx context.Context, tx *gorm.DB, metrics *domain.ImageMetrics) (*domain.ImageMetrics, error) {
	conn := r.conn(tx).WithContext(ctx)

	existing, err := r.GetMetricsByImageID(ctx, tx, metrics.ImageID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.ID = existing.ID
		metrics.CreatedAt = existing.CreatedAt
		if err := conn.Save(metrics).Error; err != nil {
			return nil, err
		}
		return metrics, nil
	}
	if err := conn.Create(metrics).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}

func (r *generationRepo) GetMetricsByImageID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*domain.ImageMetrics, error) {
	var metrics domain.ImageMetrics
	err := r.conn(tx).WithContext(ctx).Where("image_id = ?", imageID).Limit(1).Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	if metrics.ID == uuid.Nil {
		return nil, nil
	}
	return &metrics, nil
}

func (r *generationRepo) GetMetricsByImageIDs(ctx context.Context, tx *gorm.DB, imageIDs []uuid.UUID) ([]*domain.ImageMetrics, error) {
	var out []*domain.ImageMetrics
	if len(imageIDs) == 0 {
		return out, nil
	}
	err := r.conn(tx).WithContext(ctx).Where("image_id IN ?", imageIDs).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
