package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
	"github.com/adloophq/adloop-backend/internal/repos"
)

type CreateAssetInput struct {
	Name     string                `json:"name"`
	FileName string                `json:"file_name"`
	Category domain.AssetCategory  `json:"category"`
	Caption  string                `json:"caption"`
	Tags     []string              `json:"tags"`
}

// AssetService ingests assets and target groups. Asset captions are embedded
// at ingest so similarity narrowing never needs a live provider at job time.
type AssetService struct {
	log        *logger.Logger
	assetRepo  repos.AssetRepo
	groupRepo  repos.TargetGroupRepo
	embeddings EmbeddingProvider
}

func NewAssetService(log *logger.Logger, assetRepo repos.AssetRepo, groupRepo repos.TargetGroupRepo, embeddings EmbeddingProvider) *AssetService {
	return &AssetService{
		log:        log.With("service", "AssetService"),
		assetRepo:  assetRepo,
		groupRepo:  groupRepo,
		embeddings: embeddings,
	}
}

func (s *AssetService) CreateAssets(ctx context.Context, tx *gorm.DB, inputs []CreateAssetInput) ([]*domain.Asset, error) {
	assets := make([]*domain.Asset, 0, len(inputs))
	for _, in := range inputs {
		asset := &domain.Asset{
			Name:     in.Name,
			FileName: in.FileName,
			Category: in.Category,
			Caption:  in.Caption,
			Tags:     datatypes.JSONSlice[string](in.Tags),
		}
		if in.Caption != "" && s.embeddings != nil {
			res := s.embeddings.Embed(ctx, in.Caption)
			if res.UsedFallback {
				s.log.Warn("Asset caption embedding used fallback", "file_name", in.FileName)
			} else {
				asset.Embedding = datatypes.JSONSlice[float64](res.Vector)
			}
		}
		assets = append(assets, asset)
	}
	return s.assetRepo.Create(ctx, tx, assets)
}

func (s *AssetService) GetAsset(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	return s.assetRepo.GetByID(ctx, nil, id)
}

func (s *AssetService) ListAssets(ctx context.Context, limit, offset int) ([]*domain.Asset, error) {
	return s.assetRepo.List(ctx, nil, limit, offset)
}

func (s *AssetService) CreateTargetGroups(ctx context.Context, tx *gorm.DB, groups []*domain.TargetGroup) ([]*domain.TargetGroup, error) {
	return s.groupRepo.Create(ctx, tx, groups)
}

func (s *AssetService) ListTargetGroups(ctx context.Context, limit, offset int) ([]*domain.TargetGroup, error) {
	return s.groupRepo.List(ctx, nil, limit, offset)
}
