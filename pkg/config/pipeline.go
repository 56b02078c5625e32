package config

import "time"

// PipelineConfig controls the iteration loop: its wall-clock budget, the
// retry discipline around backend calls, and cost estimation rates.
type PipelineConfig struct {
	// RunTimeout is the wall-clock budget for one dispatch of a request.
	// Past it the run completes with the best result so far, or fails when
	// no iteration has committed yet.
	RunTimeout time.Duration

	// RetryAttempts, RetryBaseDelay: transient backend failures are retried
	// RetryAttempts times total, sleeping RetryBaseDelay, then double that,
	// and so on between attempts.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// Cost estimation rates for the request accumulator.
	LLMTokenCostPer1M       float64
	EmbeddingTokenCostPer1M float64
	ImageGenerationCost     float64
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		RunTimeout:              10 * time.Minute,
		RetryAttempts:           3,
		RetryBaseDelay:          1 * time.Second,
		LLMTokenCostPer1M:       2.50,
		EmbeddingTokenCostPer1M: 0.15,
		ImageGenerationCost:     0.04,
	}
}

// LoadPipelineConfigFromEnv returns defaults overridden by PIPELINE_* variables.
func LoadPipelineConfigFromEnv() *PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.RunTimeout = getEnvDuration("PIPELINE_RUN_TIMEOUT", cfg.RunTimeout)
	cfg.RetryAttempts = getEnvInt("PIPELINE_RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryBaseDelay = getEnvDuration("PIPELINE_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.LLMTokenCostPer1M = getEnvFloat("PIPELINE_LLM_TOKEN_COST_PER_1M", cfg.LLMTokenCostPer1M)
	cfg.EmbeddingTokenCostPer1M = getEnvFloat("PIPELINE_EMBEDDING_TOKEN_COST_PER_1M", cfg.EmbeddingTokenCostPer1M)
	cfg.ImageGenerationCost = getEnvFloat("PIPELINE_IMAGE_GENERATION_COST", cfg.ImageGenerationCost)
	return cfg
}
