package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignSpec is the user-configured template a campaign runs from. It is
// never mutated by the orchestrator.
type CampaignSpec struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name          string        `gorm:"column:name;not null;index" json:"name"`
	BasePrompt    string        `gorm:"column:base_prompt;type:text;not null" json:"base_prompt"`
	MaxIterations int           `gorm:"column:max_iterations;not null;default:2" json:"max_iterations"`
	BaseAssets    []Asset       `gorm:"many2many:campaign_spec_asset" json:"base_assets,omitempty"`
	TargetGroups  []TargetGroup `gorm:"many2many:campaign_spec_target_group" json:"target_groups,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:now();index" json:"created_at"`
}

func (CampaignSpec) TableName() string { return "campaign_spec" }

// Campaign is the single run instance of a CampaignSpec. The 1:1 spec
// binding is enforced in the service layer.
type Campaign struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CampaignSpecID uuid.UUID      `gorm:"type:uuid;not null;index" json:"campaign_spec_id"`
	CampaignSpec   *CampaignSpec  `gorm:"foreignKey:CampaignSpecID" json:"campaign_spec,omitempty"`
	Flows          []CampaignFlow `gorm:"foreignKey:CampaignID" json:"flows,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (Campaign) TableName() string { return "campaign" }

// CampaignFlow is the optimization loop for one (campaign, target group)
// pair. InitialPrompt is copied from the spec's base prompt at creation and
// seeds iteration 0.
type CampaignFlow struct {
	ID            uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CampaignID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"campaign_id"`
	TargetGroupID uuid.UUID    `gorm:"type:uuid;not null;index" json:"target_group_id"`
	InitialPrompt string       `gorm:"column:initial_prompt;type:text;not null" json:"initial_prompt"`
	Campaign      *Campaign    `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
	TargetGroup   *TargetGroup `gorm:"foreignKey:TargetGroupID" json:"target_group,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:now();index" json:"created_at"`
}

func (CampaignFlow) TableName() string { return "campaign_flow" }
