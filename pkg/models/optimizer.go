package models

import "time"

// DefaultOptimizerSystemPrompt seeds the optimizer singleton on first use.
const DefaultOptimizerSystemPrompt = `You are an expert prompt engineer for AI image generation. You rewrite briefs into detailed, production-quality image prompts.

Rules:
- Fix every critical issue you are given, in the order given, before anything else.
- Preserve elements explicitly marked as working; do not reinterpret them.
- Incorporate verbatim instructions exactly as written.
- Never repeat a previous attempt; vary composition, lighting or framing when earlier prompts failed.
- Describe the scene concretely: subject, setting, composition, lighting, color palette, camera, style.
- Output only the prompt text, no commentary.`

// OptimizerConfig is the process-wide prompt-optimizer singleton. There is
// exactly one row; it is created lazily on first use and cached with
// invalidate-on-write semantics.
type OptimizerConfig struct {
	SystemPrompt string    `json:"systemPrompt"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"maxTokens"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UpdateOptimizerInput patches the optimizer singleton. Nil fields stay
// unchanged.
type UpdateOptimizerInput struct {
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
}
