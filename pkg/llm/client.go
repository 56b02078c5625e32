// Package llm wraps the Gemini API behind a small text-completion and
// embedding surface. Model selection is tiered: PRO for the heavyweight
// reasoning calls, FLASH for everything latency-sensitive.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
)

// ImageInput is an inline image attached to a multimodal completion request.
type ImageInput struct {
	Data     []byte
	MIMEType string
}

// CompletionRequest is a single text (optionally multimodal) generation call.
// Model, when set, names the exact model; otherwise Tier picks one.
type CompletionRequest struct {
	System      string
	Prompt      string
	Images      []ImageInput
	Model       string
	Tier        models.ModelTier
	Temperature float32 // 0 means provider default
	MaxTokens   int32   // 0 means provider default
}

// TokenUsage is the billable token breakdown of one call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Completion is the result of a text generation call.
type Completion struct {
	Text  string
	Model string
	Usage TokenUsage
}

// Client wraps the genai client with model routing from configuration.
type Client struct {
	genai *genai.Client
	cfg   config.LLMConfig
}

// NewClient creates a Gemini-backed LLM client.
func NewClient(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	slog.Info("LLM client configured",
		"pro_model", cfg.ProModel,
		"flash_model", cfg.FlashModel,
		"embedding_model", cfg.EmbeddingModel)

	return &Client{genai: client, cfg: cfg}, nil
}

// ModelForTier maps an agent's model tier to a concrete model name.
// Unknown tiers fall back to FLASH.
func (c *Client) ModelForTier(tier models.ModelTier) string {
	if tier == models.TierPro {
		return c.cfg.ProModel
	}
	return c.cfg.FlashModel
}

// Complete performs a single generation call. Images, when present, are
// attached inline after the prompt text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = c.ModelForTier(req.Tier)
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, &genai.Part{Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: parts},
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = req.MaxTokens
	}

	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("generate content failed for model %s: %w", model, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("model %s returned no text", model)
	}

	return &Completion{
		Text:  text,
		Model: model,
		Usage: usageFromMetadata(resp.UsageMetadata),
	}, nil
}

func usageFromMetadata(md *genai.GenerateContentResponseUsageMetadata) TokenUsage {
	if md == nil {
		return TokenUsage{}
	}
	return TokenUsage{
		InputTokens:  int(md.PromptTokenCount),
		OutputTokens: int(md.CandidatesTokenCount),
		TotalTokens:  int(md.TotalTokenCount),
	}
}

// Raw exposes the underlying genai client for callers that need API
// surfaces beyond text completion, such as image generation.
func (c *Client) Raw() *genai.Client {
	return c.genai
}

// ImageModel returns the configured text-to-image model name.
func (c *Client) ImageModel() string { return c.cfg.ImageModel }

// EditModel returns the configured image editing model name.
func (c *Client) EditModel() string { return c.cfg.EditModel }
