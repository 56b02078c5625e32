package config

import "fmt"

// LLMConfig selects the Gemini models used by the pipeline and controls the
// image backend's mock and debug modes.
type LLMConfig struct {
	APIKey string

	// ProModel and FlashModel back judge evaluation (per-agent tier) and
	// prompt optimization.
	ProModel   string
	FlashModel string

	// ImageModel handles text-to-image generation; EditModel handles image
	// editing and reference-conditioned generation.
	ImageModel string
	EditModel  string

	// EmbeddingModel produces document and query embeddings for retrieval.
	EmbeddingModel string

	// MockImages short-circuits the image backend with deterministic
	// placeholder output. No image API calls are made.
	MockImages bool

	// DebugOutput dumps every generated image to DebugOutputDir.
	DebugOutput    bool
	DebugOutputDir string
}

// DefaultLLMConfig returns the built-in model selection.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		ProModel:       "gemini-2.5-pro",
		FlashModel:     "gemini-2.5-flash",
		ImageModel:     "imagen-4.0-generate-001",
		EditModel:      "gemini-2.5-flash-image-preview",
		EmbeddingModel: "gemini-embedding-001",
		DebugOutputDir: "./debug-images",
	}
}

// LoadLLMConfigFromEnv returns defaults overridden by environment variables.
func LoadLLMConfigFromEnv() *LLMConfig {
	cfg := DefaultLLMConfig()
	cfg.APIKey = getEnvOrDefault("GEMINI_API_KEY", "")
	cfg.ProModel = getEnvOrDefault("LLM_PRO_MODEL", cfg.ProModel)
	cfg.FlashModel = getEnvOrDefault("LLM_FLASH_MODEL", cfg.FlashModel)
	cfg.ImageModel = getEnvOrDefault("LLM_IMAGE_MODEL", cfg.ImageModel)
	cfg.EditModel = getEnvOrDefault("LLM_EDIT_MODEL", cfg.EditModel)
	cfg.EmbeddingModel = getEnvOrDefault("LLM_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.MockImages = getEnvBool("IMAGE_GEN_MOCK", false)
	cfg.DebugOutput = getEnvBool("IMAGE_GEN_DEBUG_OUTPUT", false)
	cfg.DebugOutputDir = getEnvOrDefault("IMAGE_GEN_DEBUG_DIR", cfg.DebugOutputDir)
	return cfg
}

// Validate checks that the configuration is usable. Judge and optimizer calls
// always need a key, so it is required even when the image backend is mocked.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}
