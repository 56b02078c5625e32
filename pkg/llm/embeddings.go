package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// EmbedDocuments embeds a batch of document chunks for indexing. Returns
// one vector per input text plus an estimated billable token count; the
// embedding endpoint does not report usage, so tokens are estimated at
// four characters per token.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, int, error) {
	return c.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a single retrieval query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, int, error) {
	vectors, tokens, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, 0, err
	}
	return vectors[0], tokens, nil
}

func (c *Client) embed(ctx context.Context, texts []string, taskType string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := c.genai.Models.EmbedContent(ctx,
		c.cfg.EmbeddingModel,
		contents,
		&genai.EmbedContentConfig{
			TaskType: taskType,
		},
	)
	if err != nil {
		return nil, 0, fmt.Errorf("embed content failed for model %s: %w", c.cfg.EmbeddingModel, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, 0, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}

	return vectors, EstimateTokens(texts...), nil
}

// EstimateTokens approximates the billable token count of the given texts
// at four characters per token, rounding up per text.
func EstimateTokens(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += (len(text) + 3) / 4
	}
	return total
}
