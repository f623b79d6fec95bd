package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
)

// Adapter contracts for the external model providers. Implementations that
// can degrade (description, embedding, analytics, analysis, refinement) never
// return an error for provider failure: they return a usable fallback value
// and set UsedFallback so callers can log it. Only the image generator
// reports per-image failure, because a missing image cannot be faked.

type GenerateRequest struct {
	Prompt          string
	BaseAsset       *domain.Asset
	ReferenceAssets []*domain.Asset
	Width           int
	Height          int
	Seed            int
}

type GenerateResult struct {
	Success      bool
	FileName     string
	RequestID    string
	Cost         float64
	ModelVersion string
	MetadataTags []string
	Err          error
}

type ImageGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) GenerateResult
}

type DescribeResult struct {
	Text         string
	UsedFallback bool
}

// DescribeProvider produces a marketing-oriented description of a generated
// image for downstream analytics simulation.
type DescribeProvider interface {
	Describe(ctx context.Context, fileName string, prompt string) DescribeResult
}

type EmbedResult struct {
	Vector       []float64
	UsedFallback bool
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) EmbedResult
}

type ImageDescription struct {
	ImageID uuid.UUID
	Text    string
}

type ImageAnalytics struct {
	ImageID     uuid.UUID
	Impressions int
	Clicks      int
	Conversions int
	Cost        float64
}

// AnalyticsProvider simulates ad platform performance for a batch of images.
// Output is one row per input, same order.
type AnalyticsProvider interface {
	SimulateMetrics(ctx context.Context, targetGroup *domain.TargetGroup, descriptions []ImageDescription) []ImageAnalytics
}

type CompareResult struct {
	Similarities   []string
	Tags           []string
	SuccessFactors string
	UsedFallback   bool
}

// AnalysisProvider compares winner images against the rest of a step's batch.
type AnalysisProvider interface {
	CompareWinners(ctx context.Context, winners []ImageDescription, others []ImageDescription) CompareResult
}

type RefineResult struct {
	Prompt       string
	Notes        string
	UsedFallback bool
}

// PromptRefiner rewrites a generation prompt using the analysis of the
// latest iteration's winners.
type PromptRefiner interface {
	Refine(ctx context.Context, currentPrompt string, targetGroup *domain.TargetGroup, comparison CompareResult) RefineResult
}
