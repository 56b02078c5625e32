package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// DocumentStatus tracks a document through its indexing pipeline.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentIndexed DocumentStatus = "indexed"
	DocumentFailed  DocumentStatus = "failed"
)

// AgentDocument is one uploaded reference document owned by exactly one
// agent. Its chunks are owned exclusively by the document.
type AgentDocument struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agentId"`
	Filename     string         `json:"filename"`
	StorageKey   string         `json:"storageKey"`
	ContentType  string         `json:"contentType"`
	SizeBytes    int64          `json:"sizeBytes"`
	Status       DocumentStatus `json:"status"`
	ChunkCount   int            `json:"chunkCount"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// DocumentChunk is one embedded slice of a document. The embedding
// dimension is fixed by the embedding model; retrieval fails on mismatch.
type DocumentChunk struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"documentId"`
	AgentID    string          `json:"agentId"`
	ChunkIndex int             `json:"chunkIndex"`
	Content    string          `json:"content"`
	Embedding  pgvector.Vector `json:"-"`
	CreatedAt  time.Time       `json:"createdAt"`
}
