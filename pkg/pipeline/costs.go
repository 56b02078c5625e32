package pipeline

import (
	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
)

// estimateCosts prices a usage delta with the configured per-unit rates.
func estimateCosts(cfg config.PipelineConfig, llmTokens, embeddingTokens int64, imageCount int) models.Costs {
	total := float64(llmTokens)/1_000_000*cfg.LLMTokenCostPer1M +
		float64(embeddingTokens)/1_000_000*cfg.EmbeddingTokenCostPer1M +
		float64(imageCount)*cfg.ImageGenerationCost
	return models.Costs{
		LLMTokens:          llmTokens,
		EmbeddingTokens:    embeddingTokens,
		ImageGenerations:   imageCount,
		TotalEstimatedCost: total,
	}
}
