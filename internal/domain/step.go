package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StepState is the state-machine state of one flow iteration. Transitions
// are strictly forward: generating -> collecting -> analyzing -> completed.
type StepState string

const (
	StepGenerating StepState = "generating"
	StepCollecting StepState = "collecting"
	StepAnalyzing  StepState = "analyzing"
	StepCompleted  StepState = "completed"
)

// NextState returns the only state reachable from s, or "" for terminal.
func (s StepState) NextState() StepState {
	switch s {
	case StepGenerating:
		return StepCollecting
	case StepCollecting:
		return StepAnalyzing
	case StepAnalyzing:
		return StepCompleted
	default:
		return ""
	}
}

// FlowStep is one iteration of a flow's optimization loop. Steps are
// append-only; only State mutates after creation. InputEmbedding and
// InputInsights carry the previous iteration's analysis output and are
// empty only for iteration 0.
type FlowStep struct {
	ID             uuid.UUID                    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FlowID         uuid.UUID                    `gorm:"type:uuid;not null;index" json:"flow_id"`
	Iteration      int                          `gorm:"column:iteration;not null;index" json:"iteration"`
	State          StepState                    `gorm:"column:state;not null;index" json:"state"`
	InputEmbedding datatypes.JSONSlice[float64] `gorm:"column:input_embedding;type:jsonb" json:"input_embedding,omitempty"`
	InputInsights  string                       `gorm:"column:input_insights;type:text" json:"input_insights,omitempty"`
	CreatedAt      time.Time                    `gorm:"not null;default:now();index" json:"created_at"`
}

func (FlowStep) TableName() string { return "flow_step" }

// GenerationResult records what the GENERATING phase actually did: the
// prompt used and the assets drawn from the pool. Created once per step,
// never mutated (a retried step deletes and recreates it wholesale).
type GenerationResult struct {
	ID             uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StepID         uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex" json:"step_id"`
	Prompt         string           `gorm:"column:prompt;type:text;not null" json:"prompt"`
	PromptNotes    string           `gorm:"column:prompt_notes;type:text" json:"prompt_notes,omitempty"`
	SelectedAssets []Asset          `gorm:"many2many:generation_result_asset" json:"selected_assets,omitempty"`
	Images         []GeneratedImage `gorm:"foreignKey:GenerationResultID" json:"images,omitempty"`
	CreatedAt      time.Time        `gorm:"not null;default:now();index" json:"created_at"`
}

func (GenerationResult) TableName() string { return "generation_result" }

// GeneratedImage is one creative produced in a GENERATING pass. The
// COLLECTING phase appends exactly one "description:<text>" metadata tag.
type GeneratedImage struct {
	ID                 uuid.UUID                   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GenerationResultID uuid.UUID                   `gorm:"type:uuid;not null;index" json:"generation_result_id"`
	FileName           string                      `gorm:"column:file_name;not null;index" json:"file_name"`
	MetadataTags       datatypes.JSONSlice[string] `gorm:"column:metadata_tags;type:jsonb" json:"metadata_tags,omitempty"`
	ModelVersion       string                      `gorm:"column:model_version" json:"model_version,omitempty"`
	SourceAssets       []Asset                     `gorm:"many2many:generated_image_asset" json:"source_assets,omitempty"`
	CreatedAt          time.Time                   `gorm:"not null;default:now();index" json:"created_at"`
}

func (GeneratedImage) TableName() string { return "generated_image" }

// DescriptionTagPrefix marks the metadata tag that carries the vision
// description appended during COLLECTING_DATA.
const DescriptionTagPrefix = "description:"

// Description extracts the collected description tag, if present.
func (g *GeneratedImage) Description() (string, bool) {
	for _, tag := range g.MetadataTags {
		if len(tag) > len(DescriptionTagPrefix) && tag[:len(DescriptionTagPrefix)] == DescriptionTagPrefix {
			return tag[len(DescriptionTagPrefix):], true
		}
	}
	return "", false
}

// ImageMetrics holds raw performance counts for one generated image plus
// ratios derived from them. Derived values are recomputed on every save so
// they can never drift from the raw counts.
type ImageMetrics struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ImageID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"image_id"`
	Impressions int       `gorm:"column:impressions;not null;default:0" json:"impressions"`
	Clicks      int       `gorm:"column:clicks;not null;default:0" json:"clicks"`
	Conversions int       `gorm:"column:conversions;not null;default:0" json:"conversions"`
	Cost        float64   `gorm:"column:cost;not null;default:0" json:"cost"`

	CTR            float64 `gorm:"column:ctr;not null;default:0" json:"ctr"`
	ConversionRate float64 `gorm:"column:conversion_rate;not null;default:0" json:"conversion_rate"`
	CPC            float64 `gorm:"column:cpc;not null;default:0" json:"cpc"`
	CPA            float64 `gorm:"column:cpa;not null;default:0" json:"cpa"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ImageMetrics) TableName() string { return "image_metrics" }

// ComputeDerived recomputes the ratio fields from the raw counts.
func (m *ImageMetrics) ComputeDerived() {
	m.CTR, m.ConversionRate, m.CPC, m.CPA = 0, 0, 0, 0
	if m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions)
	}
	if m.Clicks > 0 {
		m.ConversionRate = float64(m.Conversions) / float64(m.Clicks)
		m.CPC = m.Cost / float64(m.Clicks)
	}
	if m.Conversions > 0 {
		m.CPA = m.Cost / float64(m.Conversions)
	}
}

func (m *ImageMetrics) BeforeSave(tx *gorm.DB) error {
	m.ComputeDerived()
	return nil
}

// InsightPayload is the discriminated replacement for the single overloaded
// insight text field: Note carries the qualitative "what made winners
// different" narrative, NextPrompt the rewritten prompt the next iteration
// generates with.
type InsightPayload struct {
	Note       string `json:"note"`
	NextPrompt string `json:"next_prompt"`
}

// AnalysisResult is the ANALYZING phase output for one step: ranked winner
// ids (best first), the mean embedding of the winners' source assets, the
// insight payload, and concise differentiation tags.
type AnalysisResult struct {
	ID              uuid.UUID                      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StepID          uuid.UUID                      `gorm:"type:uuid;not null;uniqueIndex" json:"step_id"`
	WinnerImageIDs  datatypes.JSONSlice[uuid.UUID] `gorm:"column:winner_image_ids;type:jsonb" json:"winner_image_ids"`
	OutputEmbedding datatypes.JSONSlice[float64]   `gorm:"column:output_embedding;type:jsonb" json:"output_embedding"`
	Insight         datatypes.JSONType[InsightPayload] `gorm:"column:insight;type:jsonb" json:"insight"`
	DiffTags        datatypes.JSONSlice[string]    `gorm:"column:diff_tags;type:jsonb" json:"diff_tags,omitempty"`
	CreatedAt       time.Time                      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AnalysisResult) TableName() string { return "analysis_result" }
