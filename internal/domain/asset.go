package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AssetCategory classifies the role an asset plays in a composed ad image.
type AssetCategory string

const (
	CategoryBackground  AssetCategory = "background"
	CategoryProduct     AssetCategory = "product"
	CategoryModel       AssetCategory = "model"
	CategoryLogo        AssetCategory = "logo"
	CategorySlogan      AssetCategory = "slogan"
	CategoryTagline     AssetCategory = "tagline"
	CategoryHeadline    AssetCategory = "headline"
	CategoryDescription AssetCategory = "description"
	CategoryCTA         AssetCategory = "cta"
)

// Asset is a source image (or text snippet rendered as image) that can be
// composited into generated ad creatives. Embedding is computed from the
// caption at ingest time and may be empty when the embedding provider was
// unavailable.
type Asset struct {
	ID        uuid.UUID                    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string                       `gorm:"column:name;not null" json:"name"`
	FileName  string                       `gorm:"column:file_name;not null;index" json:"file_name"`
	Category  AssetCategory                `gorm:"column:category;not null;index" json:"category"`
	Caption   string                       `gorm:"column:caption;type:text" json:"caption"`
	Tags      datatypes.JSONSlice[string]  `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	Embedding datatypes.JSONSlice[float64] `gorm:"column:embedding;type:jsonb" json:"embedding,omitempty"`
	CreatedAt time.Time                    `gorm:"not null;default:now();index" json:"created_at"`
}

func (Asset) TableName() string { return "asset" }

// TargetGroup describes one audience a campaign optimizes for.
type TargetGroup struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null;index" json:"name"`
	City           string    `gorm:"column:city" json:"city,omitempty"`
	AgeGroup       string    `gorm:"column:age_group" json:"age_group,omitempty"`
	EconomicStatus string    `gorm:"column:economic_status" json:"economic_status,omitempty"`
	Description    string    `gorm:"column:description;type:text" json:"description,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (TargetGroup) TableName() string { return "target_group" }
