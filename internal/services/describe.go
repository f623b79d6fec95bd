package services

import (
	"context"

	"github.com/adloophq/adloop-backend/internal/logger"
)

const fallbackDescription = "A generic image whose detailed description could not be generated " +
	"because the AI service was unavailable."

const describePrompt = "Look at this image and describe it in detail. " +
	"Include all notable objects, their colors, approximate positions, " +
	"any visible text, and how elements relate to each other."

// DescribeService produces vision descriptions of generated creatives.
// Provider failure degrades to a fixed fallback description so the
// collecting phase can always complete.
type DescribeService struct {
	log    *logger.Logger
	ai     OpenAIClient
	bucket BucketService
}

func NewDescribeService(log *logger.Logger, ai OpenAIClient, bucket BucketService) *DescribeService {
	return &DescribeService{
		log:    log.With("service", "DescribeService"),
		ai:     ai,
		bucket: bucket,
	}
}

func (s *DescribeService) Describe(ctx context.Context, fileName string, prompt string) DescribeResult {
	if s.ai == nil {
		return DescribeResult{Text: fallbackDescription, UsedFallback: true}
	}
	if prompt == "" {
		prompt = describePrompt
	}

	url := s.bucket.GetPublicURL(fileName)
	text, err := s.ai.DescribeImage(ctx, prompt, url)
	if err != nil {
		s.log.Warn("Image description failed, using fallback", "file_name", fileName, "error", err)
		return DescribeResult{Text: fallbackDescription, UsedFallback: true}
	}
	return DescribeResult{Text: text}
}
