package config

// RAGConfig controls document chunking and embedding for judge retrieval.
type RAGConfig struct {
	// ChunkSize and ChunkOverlap are measured in characters. Windows prefer
	// to break at a sentence boundary inside the window, falling back to
	// whitespace, then a hard cut.
	ChunkSize    int
	ChunkOverlap int

	// EmbedBatchSize is the number of chunks sent per embedding API call.
	EmbedBatchSize int

	// EmbeddingDimensions must match the document_chunks vector column.
	EmbeddingDimensions int
}

// DefaultRAGConfig returns the built-in chunking and embedding defaults.
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		EmbedBatchSize:      10,
		EmbeddingDimensions: 768,
	}
}

// LoadRAGConfigFromEnv returns defaults overridden by RAG_* variables.
func LoadRAGConfigFromEnv() *RAGConfig {
	cfg := DefaultRAGConfig()
	cfg.ChunkSize = getEnvInt("RAG_CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvInt("RAG_CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.EmbedBatchSize = getEnvInt("RAG_EMBED_BATCH_SIZE", cfg.EmbedBatchSize)
	cfg.EmbeddingDimensions = getEnvInt("RAG_EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
	return cfg
}
