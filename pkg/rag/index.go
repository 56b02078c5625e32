package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// Embedder produces embedding vectors. Satisfied by *llm.Client.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, int, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, int, error)
}

// Index chunks, embeds and persists document content, and answers
// similarity queries over an agent's indexed chunks.
type Index struct {
	documents *services.DocumentService
	embedder  Embedder
	chunker   *Chunker
	batchSize int
}

// NewIndex creates the RAG index.
func NewIndex(documents *services.DocumentService, embedder Embedder, cfg config.RAGConfig) *Index {
	if documents == nil {
		panic("documents service is required")
	}
	if embedder == nil {
		panic("embedder is required")
	}
	batchSize := cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Index{
		documents: documents,
		embedder:  embedder,
		chunker:   NewChunker(cfg),
		batchSize: batchSize,
	}
}

// IndexDocument chunks and embeds the content, then atomically replaces
// the document's chunk set and marks it indexed. On failure the document
// is marked failed with the error message. Returns the estimated
// embedding token count.
func (ix *Index) IndexDocument(ctx context.Context, doc *models.AgentDocument, content string) (int, error) {
	texts := ix.chunker.Split(content)

	chunks := make([]*models.DocumentChunk, 0, len(texts))
	totalTokens := 0
	for batchStart := 0; batchStart < len(texts); batchStart += ix.batchSize {
		batchEnd := batchStart + ix.batchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}
		batch := texts[batchStart:batchEnd]

		vectors, tokens, err := ix.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			ix.markFailed(ctx, doc.ID, err)
			return totalTokens, fmt.Errorf("failed to embed chunks %d-%d of document %s: %w",
				batchStart, batchEnd-1, doc.ID, err)
		}
		totalTokens += tokens

		for i, vec := range vectors {
			chunks = append(chunks, &models.DocumentChunk{
				ID:         uuid.New().String(),
				DocumentID: doc.ID,
				AgentID:    doc.AgentID,
				ChunkIndex: batchStart + i,
				Content:    batch[i],
				Embedding:  pgvector.NewVector(vec),
			})
		}
	}

	if err := ix.documents.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		ix.markFailed(ctx, doc.ID, err)
		return totalTokens, fmt.Errorf("failed to persist chunks for document %s: %w", doc.ID, err)
	}

	slog.Info("Document indexed",
		"document_id", doc.ID,
		"agent_id", doc.AgentID,
		"chunks", len(chunks),
		"embedding_tokens", totalTokens)
	return totalTokens, nil
}

func (ix *Index) markFailed(ctx context.Context, documentID string, cause error) {
	if err := ix.documents.MarkFailed(ctx, documentID, cause.Error()); err != nil {
		slog.Error("Failed to mark document as failed", "document_id", documentID, "error", err)
	}
}

// ScoredChunk is a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk      *models.DocumentChunk
	Similarity float64
}

// Search embeds the query and ranks every indexed chunk of the agent's
// documents by cosine similarity. Chunks below the threshold are dropped;
// at most topK survive, highest first. Returns the estimated embedding
// token count alongside the results.
func (ix *Index) Search(ctx context.Context, agentID, query string, topK int, threshold float64) ([]ScoredChunk, int, error) {
	if topK <= 0 {
		topK = models.DefaultRAGTopK
	}

	chunks, err := ix.documents.ListChunksByAgent(ctx, agentID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load chunks for agent %s: %w", agentID, err)
	}
	if len(chunks) == 0 {
		return nil, 0, nil
	}

	queryVec, tokens, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to embed query: %w", err)
	}

	scored, err := rankChunks(queryVec, chunks, topK, threshold)
	if err != nil {
		return nil, tokens, fmt.Errorf("agent %s: %w", agentID, err)
	}
	return scored, tokens, nil
}

// rankChunks scores every chunk against the query vector, drops those
// below the threshold and keeps the topK highest.
func rankChunks(queryVec []float32, chunks []*models.DocumentChunk, topK int, threshold float64) ([]ScoredChunk, error) {
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		sim, err := CosineSimilarity(queryVec, chunk.Embedding.Slice())
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		if sim >= threshold {
			scored = append(scored, ScoredChunk{Chunk: chunk, Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
