package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/models"
	testdb "github.com/atelierhq/atelier/test/database"
)

// testEmbedding builds a 768-dim vector with a single distinguishing value.
func testEmbedding(seed float32) pgvector.Vector {
	values := make([]float32, 768)
	values[0] = seed
	return pgvector.NewVector(values)
}

func testChunk(doc *models.AgentDocument, index int, content string) *models.DocumentChunk {
	return &models.DocumentChunk{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		AgentID:    doc.AgentID,
		ChunkIndex: index,
		Content:    content,
		Embedding:  testEmbedding(float32(index + 1)),
	}
}

func TestDocumentService_Lifecycle(t *testing.T) {
	client := testdb.NewTestClient(t)
	agents := NewAgentService(client.Pool())
	service := NewDocumentService(client.Pool())
	ctx := context.Background()

	agent, err := agents.Create(ctx, validAgentInput())
	require.NoError(t, err)

	t.Run("creates a pending document", func(t *testing.T) {
		doc, err := service.Create(ctx, agent.ID, "style-guide.md", "org-1/agents/a/docs/style-guide.md", "text/markdown", 2048)
		require.NoError(t, err)

		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, models.DocumentPending, doc.Status)
		assert.Zero(t, doc.ChunkCount)
		assert.Equal(t, int64(2048), doc.SizeBytes)

		got, err := service.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
	})

	t.Run("validates input", func(t *testing.T) {
		_, err := service.Create(ctx, "", "f.md", "key", "text/markdown", 1)
		assert.True(t, IsValidationError(err))

		_, err = service.Create(ctx, agent.ID, "", "key", "text/markdown", 1)
		assert.True(t, IsValidationError(err))
	})

	t.Run("get missing document", func(t *testing.T) {
		_, err := service.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lists documents newest first", func(t *testing.T) {
		docs, err := service.ListByAgent(ctx, agent.ID)
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		docs, err = service.ListByAgent(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestDocumentService_Chunks(t *testing.T) {
	client := testdb.NewTestClient(t)
	agents := NewAgentService(client.Pool())
	service := NewDocumentService(client.Pool())
	ctx := context.Background()

	agent, err := agents.Create(ctx, validAgentInput())
	require.NoError(t, err)
	doc, err := service.Create(ctx, agent.ID, "palette.md", "org-1/agents/a/docs/palette.md", "text/markdown", 512)
	require.NoError(t, err)

	t.Run("indexing replaces the chunk set", func(t *testing.T) {
		err := service.ReplaceChunks(ctx, doc.ID, []*models.DocumentChunk{
			testChunk(doc, 0, "Primary palette: deep teal and warm sand."),
			testChunk(doc, 1, "Avoid saturated reds except for accents."),
		})
		require.NoError(t, err)

		indexed, err := service.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DocumentIndexed, indexed.Status)
		assert.Equal(t, 2, indexed.ChunkCount)

		chunks, err := service.ListChunksByAgent(ctx, agent.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
		assert.Equal(t, 1, chunks[1].ChunkIndex)
		assert.Equal(t, "Primary palette: deep teal and warm sand.", chunks[0].Content)
		assert.Len(t, chunks[0].Embedding.Slice(), 768)
	})

	t.Run("re-indexing leaves no stale chunks", func(t *testing.T) {
		err := service.ReplaceChunks(ctx, doc.ID, []*models.DocumentChunk{
			testChunk(doc, 0, "Revised palette: monochrome with teal accents."),
		})
		require.NoError(t, err)

		chunks, err := service.ListChunksByAgent(ctx, agent.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Revised palette: monochrome with teal accents.", chunks[0].Content)
	})

	t.Run("failed documents are excluded from retrieval", func(t *testing.T) {
		require.NoError(t, service.MarkFailed(ctx, doc.ID, "embedding call failed"))

		failed, err := service.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DocumentFailed, failed.Status)
		assert.Equal(t, "embedding call failed", failed.ErrorMessage)

		chunks, err := service.ListChunksByAgent(ctx, agent.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("delete cascades to chunks", func(t *testing.T) {
		require.NoError(t, service.Delete(ctx, doc.ID))

		_, err := service.Get(ctx, doc.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		var count int
		err = client.Pool().QueryRow(ctx, `SELECT count(*) FROM document_chunks WHERE document_id = $1`, doc.ID).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count)

		assert.ErrorIs(t, service.Delete(ctx, doc.ID), ErrNotFound)
	})
}
