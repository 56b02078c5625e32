package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/pkg/models"
)

const documentColumns = `id, agent_id, filename, storage_key, content_type, size_bytes,
	status, chunk_count, error_message, created_at`

// DocumentService persists agent documents and their embedded chunks.
// Document rows track indexing state; chunk rows hold the text and vectors
// the retrieval layer searches over.
type DocumentService struct {
	pool *pgxpool.Pool
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(pool *pgxpool.Pool) *DocumentService {
	if pool == nil {
		panic("NewDocumentService: pool must not be nil")
	}
	return &DocumentService{pool: pool}
}

// Create registers an uploaded document in pending status. Indexing happens
// asynchronously and flips the status to indexed or failed.
func (s *DocumentService) Create(ctx context.Context, agentID, filename, storageKey, contentType string, sizeBytes int64) (*models.AgentDocument, error) {
	if agentID == "" {
		return nil, NewValidationError("agentId", "required")
	}
	if filename == "" {
		return nil, NewValidationError("filename", "required")
	}

	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agent_documents (id, agent_id, filename, storage_key, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+documentColumns,
		id, agentID, filename, storageKey, contentType, sizeBytes, models.DocumentPending,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.AgentDocument, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM agent_documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByAgent returns an agent's documents, newest first.
func (s *DocumentService) ListByAgent(ctx context.Context, agentID string) ([]*models.AgentDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentColumns+` FROM agent_documents
		WHERE agent_id = $1
		ORDER BY created_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*models.AgentDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// ReplaceChunks atomically swaps a document's chunk set and marks the
// document indexed. Re-indexing a document never leaves stale chunks behind.
func (s *DocumentService) ReplaceChunks(ctx context.Context, documentID string, chunks []*models.DocumentChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(`
			INSERT INTO document_chunks (id, document_id, agent_id, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			chunk.ID, chunk.DocumentID, chunk.AgentID, chunk.ChunkIndex, chunk.Content, chunk.Embedding,
		)
	}
	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE agent_documents
		SET status = $2, chunk_count = $3, error_message = ''
		WHERE id = $1`,
		documentID, models.DocumentIndexed, len(chunks),
	); err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// MarkFailed records an indexing failure on the document.
func (s *DocumentService) MarkFailed(ctx context.Context, documentID string, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_documents SET status = $2, error_message = $3 WHERE id = $1`,
		documentID, models.DocumentFailed, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document row; its chunks go with it via cascade.
// The stored object is the caller's to remove.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChunksByAgent returns every indexed chunk across an agent's documents,
// in document then chunk order. Retrieval scores these in memory.
func (s *DocumentService) ListChunksByAgent(ctx context.Context, agentID string) ([]*models.DocumentChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.agent_id, c.chunk_index, c.content, c.embedding, c.created_at
		FROM document_chunks c
		JOIN agent_documents d ON d.id = c.document_id
		WHERE c.agent_id = $1 AND d.status = $2
		ORDER BY c.document_id, c.chunk_index`,
		agentID, models.DocumentIndexed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := []*models.DocumentChunk{}
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.AgentID, &c.ChunkIndex, &c.Content, &c.Embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

func scanDocument(row rowScanner) (*models.AgentDocument, error) {
	var d models.AgentDocument
	err := row.Scan(
		&d.ID, &d.AgentID, &d.Filename, &d.StorageKey, &d.ContentType, &d.SizeBytes,
		&d.Status, &d.ChunkCount, &d.ErrorMessage, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
