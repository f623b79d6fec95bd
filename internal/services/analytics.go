package services

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

const (
	minImpressions = 10
	maxImpressions = 100000
)

// AnalyticsService simulates ad platform performance per image. The LLM path
// predicts metrics from the image descriptions and the audience profile; when
// it is unavailable each image gets plausible random metrics seeded from its
// id, so repeated runs over the same batch stay stable.
type AnalyticsService struct {
	log *logger.Logger
	ai  OpenAIClient
}

func NewAnalyticsService(log *logger.Logger, ai OpenAIClient) *AnalyticsService {
	return &AnalyticsService{log: log.With("service", "AnalyticsService"), ai: ai}
}

func (s *AnalyticsService) SimulateMetrics(ctx context.Context, targetGroup *domain.TargetGroup, descriptions []ImageDescription) []ImageAnalytics {
	if len(descriptions) == 0 {
		return nil
	}
	if s.ai == nil {
		return fallbackAnalytics(descriptions)
	}

	rows, err := s.simulateWithModel(ctx, targetGroup, descriptions)
	if err != nil {
		s.log.Warn("Analytics simulation failed, using fallback", "error", err)
		return fallbackAnalytics(descriptions)
	}
	return rows
}

func (s *AnalyticsService) simulateWithModel(ctx context.Context, targetGroup *domain.TargetGroup, descriptions []ImageDescription) ([]ImageAnalytics, error) {
	system := "You are an expert digital marketing analyst specializing in ad performance prediction. " +
		"Given a target audience profile and descriptions of ad images, you predict realistic performance metrics. " +
		"Predictions must reflect how well each image resonates with the audience, show realistic variance " +
		"between images, and be internally consistent."

	var sb strings.Builder
	sb.WriteString("Analyze these ad images for the following target audience and predict realistic performance metrics.\n\n")
	sb.WriteString(targetGroupContext(targetGroup))
	sb.WriteString("\n\nImages to analyze:\n")
	for i, d := range descriptions {
		fmt.Fprintf(&sb, "Image %d (ID: %s):\n%s\n\n", i+1, d.ImageID, d.Text)
	}
	fmt.Fprintf(&sb, "For each image, generate realistic analytics with these constraints:\n")
	fmt.Fprintf(&sb, "- Impressions: between %d and %d\n", minImpressions, maxImpressions)
	sb.WriteString("- CTR: typically 1.5% to 6%\n")
	sb.WriteString("- Conversion rate from impressions: typically 0.05% to 0.5%\n")
	sb.WriteString("- Cost per impression: typically $0.005 to $0.02\n")
	sb.WriteString("Images that appeal more to the target group must have noticeably better metrics.")

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analytics": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"image_id":    map[string]any{"type": "string"},
						"impressions": map[string]any{"type": "integer"},
						"clicks":      map[string]any{"type": "integer"},
						"conversions": map[string]any{"type": "integer"},
						"cost":        map[string]any{"type": "number"},
					},
					"required":             []string{"image_id", "impressions", "clicks", "conversions", "cost"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"analytics"},
		"additionalProperties": false,
	}

	obj, err := s.ai.GenerateJSON(ctx, system, sb.String(), "image_analytics", schema)
	if err != nil {
		return nil, err
	}

	rawRows, ok := obj["analytics"].([]any)
	if !ok {
		return nil, fmt.Errorf("analytics field missing or malformed")
	}

	byID := make(map[uuid.UUID]ImageAnalytics, len(rawRows))
	for _, raw := range rawRows {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, err := uuid.Parse(asString(m["image_id"]))
		if err != nil {
			continue
		}
		byID[id] = ImageAnalytics{
			ImageID:     id,
			Impressions: asInt(m["impressions"]),
			Clicks:      asInt(m["clicks"]),
			Conversions: asInt(m["conversions"]),
			Cost:        asFloat(m["cost"]),
		}
	}

	out := make([]ImageAnalytics, 0, len(descriptions))
	for _, d := range descriptions {
		row, ok := byID[d.ImageID]
		if !ok {
			return nil, fmt.Errorf("model omitted analytics for image %s", d.ImageID)
		}
		out = append(out, row)
	}
	return out, nil
}

// fallbackAnalytics mirrors the LLM output shape with random but plausible
// numbers. Seeding from the image id keeps a rerun over the same batch from
// reshuffling the ranking.
func fallbackAnalytics(descriptions []ImageDescription) []ImageAnalytics {
	out := make([]ImageAnalytics, 0, len(descriptions))
	for _, d := range descriptions {
		rng := rand.New(rand.NewSource(seedFromUUID(d.ImageID)))

		impressions := minImpressions + rng.Intn(maxImpressions-minImpressions+1)
		clickLow := int(float64(impressions) * 0.015)
		clickHigh := int(float64(impressions) * 0.06)
		clicks := clickLow
		if clickHigh > clickLow {
			clicks += rng.Intn(clickHigh - clickLow + 1)
		}
		convLow := int(float64(clicks) * 0.05)
		convHigh := int(float64(clicks) * 0.25)
		conversions := convLow
		if convHigh > convLow {
			conversions += rng.Intn(convHigh - convLow + 1)
		}
		cost := math.Round((150.0+rng.Float64()*250.0)*100) / 100

		out = append(out, ImageAnalytics{
			ImageID:     d.ImageID,
			Impressions: impressions,
			Clicks:      clicks,
			Conversions: conversions,
			Cost:        cost,
		})
	}
	return out
}

func seedFromUUID(id uuid.UUID) int64 {
	b := id[:]
	return int64(binary.BigEndian.Uint64(b[:8]) ^ binary.BigEndian.Uint64(b[8:]))
}

func targetGroupContext(tg *domain.TargetGroup) string {
	if tg == nil {
		return "Target Group: unknown"
	}
	parts := []string{fmt.Sprintf("Target Group: %s", tg.Name)}
	if tg.City != "" {
		parts = append(parts, fmt.Sprintf("Location: %s", tg.City))
	}
	if tg.AgeGroup != "" {
		parts = append(parts, fmt.Sprintf("Age Group: %s", tg.AgeGroup))
	}
	if tg.EconomicStatus != "" {
		parts = append(parts, fmt.Sprintf("Economic Status: %s", tg.EconomicStatus))
	}
	if tg.Description != "" {
		parts = append(parts, fmt.Sprintf("Description: %s", tg.Description))
	}
	return strings.Join(parts, "\n")
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}
