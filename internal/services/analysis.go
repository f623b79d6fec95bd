package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

var fallbackCompare = CompareResult{
	Similarities:   []string{"Unable to analyze visual similarities (AI service unavailable)."},
	Tags:           []string{"analysis_unavailable"},
	SuccessFactors: "Analysis could not be generated.",
	UsedFallback:   true,
}

// AnalysisService compares winner images against the rest of a batch and
// rewrites generation prompts from the comparison. Both operations degrade:
// comparison to a fixed placeholder, refinement to the unchanged prompt.
type AnalysisService struct {
	log *logger.Logger
	ai  OpenAIClient
}

func NewAnalysisService(log *logger.Logger, ai OpenAIClient) *AnalysisService {
	return &AnalysisService{log: log.With("service", "AnalysisService"), ai: ai}
}

func (s *AnalysisService) CompareWinners(ctx context.Context, winners []ImageDescription, others []ImageDescription) CompareResult {
	if s.ai == nil {
		return fallbackCompare
	}

	system := "You are an expert visual analyst specializing in advertising effectiveness. " +
		"Compare high-performing and lower-performing ad images to identify what visual elements " +
		"the winning images share that the others lack. Focus on concrete attributes: color palettes, " +
		"lighting, composition, subject positioning, background, product prominence, overall mood."

	var sb strings.Builder
	sb.WriteString("Analyze these ad image descriptions to identify what makes the winners successful.\n\n")
	sb.WriteString("TOP-PERFORMING IMAGES:\n")
	for i, w := range winners {
		fmt.Fprintf(&sb, "Winner %d (ID: %.8s):\n%s\n\n", i+1, w.ImageID.String(), w.Text)
	}
	sb.WriteString("LOWER-PERFORMING IMAGES:\n")
	for i, o := range others {
		fmt.Fprintf(&sb, "Lower Performer %d (ID: %.8s):\n%s\n\n", i+1, o.ImageID.String(), o.Text)
	}
	sb.WriteString("Identify what the winning images have in common that the lower performers lack, ")
	sb.WriteString("which visual elements contribute to their success, and concise actionable tags ")
	sb.WriteString("(2-4 words each, like \"warm color palette\" or \"close-up framing\").")

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"visual_similarities": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"differentiation_tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"success_factors": map[string]any{"type": "string"},
		},
		"required":             []string{"visual_similarities", "differentiation_tags", "success_factors"},
		"additionalProperties": false,
	}

	obj, err := s.ai.GenerateJSON(ctx, system, sb.String(), "winner_comparison", schema)
	if err != nil {
		s.log.Warn("Winner comparison failed, using fallback", "error", err)
		return fallbackCompare
	}

	return CompareResult{
		Similarities:   asStringSlice(obj["visual_similarities"]),
		Tags:           asStringSlice(obj["differentiation_tags"]),
		SuccessFactors: asString(obj["success_factors"]),
	}
}

func (s *AnalysisService) Refine(ctx context.Context, currentPrompt string, targetGroup *domain.TargetGroup, comparison CompareResult) RefineResult {
	if s.ai == nil || comparison.UsedFallback {
		return RefineResult{
			Prompt:       currentPrompt,
			Notes:        "No modification (analysis unavailable)",
			UsedFallback: true,
		}
	}

	system := "You are an expert in advertising creative optimization. Improve image generation " +
		"prompts based on performance data: incorporate the successful visual elements, better " +
		"resonate with the target audience, and maintain the core intent of the original prompt."

	var sb strings.Builder
	sb.WriteString("Improve this image generation prompt based on performance analysis.\n\n")
	sb.WriteString("CURRENT PROMPT:\n")
	sb.WriteString(currentPrompt)
	sb.WriteString("\n\nTARGET AUDIENCE:\n")
	sb.WriteString(targetGroupContext(targetGroup))
	sb.WriteString("\n\nVISUAL SIMILARITIES IN WINNING IMAGES:\n")
	for _, sim := range comparison.Similarities {
		fmt.Fprintf(&sb, "- %s\n", sim)
	}
	sb.WriteString("\nSUCCESS FACTORS:\n")
	sb.WriteString(comparison.SuccessFactors)
	sb.WriteString("\n\nCreate an improved prompt that incorporates the success factors while maintaining the core intent.")

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"modified_prompt":    map[string]any{"type": "string"},
			"modification_notes": map[string]any{"type": "string"},
		},
		"required":             []string{"modified_prompt", "modification_notes"},
		"additionalProperties": false,
	}

	obj, err := s.ai.GenerateJSON(ctx, system, sb.String(), "prompt_refinement", schema)
	if err != nil {
		s.log.Warn("Prompt refinement failed, keeping current prompt", "error", err)
		return RefineResult{
			Prompt:       currentPrompt,
			Notes:        "No modification (refinement unavailable)",
			UsedFallback: true,
		}
	}

	refined := asString(obj["modified_prompt"])
	if refined == "" {
		refined = currentPrompt
	}
	return RefineResult{
		Prompt: refined,
		Notes:  asString(obj["modification_notes"]),
	}
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
