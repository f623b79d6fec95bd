package services

import (
	"context"
	"strings"

	"github.com/adloophq/adloop-backend/internal/logger"
)

// EmbeddingDim matches text-embedding-3-small.
const EmbeddingDim = 1536

// EmbeddingService wraps the embeddings API. Provider failure degrades to a
// zero vector of the model dimension; IsZeroVector lets callers detect that
// and skip similarity narrowing.
type EmbeddingService struct {
	log *logger.Logger
	ai  OpenAIClient
}

func NewEmbeddingService(log *logger.Logger, ai OpenAIClient) *EmbeddingService {
	return &EmbeddingService{log: log.With("service", "EmbeddingService"), ai: ai}
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) EmbedResult {
	text = strings.TrimSpace(text)
	if text == "" || s.ai == nil {
		return EmbedResult{Vector: make([]float64, EmbeddingDim), UsedFallback: true}
	}

	vectors, err := s.ai.Embed(ctx, []string{text})
	if err != nil || len(vectors) == 0 {
		s.log.Warn("Embedding failed, using zero vector", "error", err)
		return EmbedResult{Vector: make([]float64, EmbeddingDim), UsedFallback: true}
	}
	return EmbedResult{Vector: vectors[0]}
}

// IsZeroVector reports whether v is empty or all zeros, i.e. a fallback.
func IsZeroVector(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
