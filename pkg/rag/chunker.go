// Package rag provides document chunking, embedding and cosine-similarity
// retrieval for judge reference documents.
package rag

import (
	"strings"

	"github.com/atelierhq/atelier/pkg/config"
)

// Chunker splits normalized text into overlapping windows, preferring to
// cut at sentence boundaries.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker from configuration, falling back to
// defaults for zero values.
func NewChunker(cfg config.RAGConfig) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 1000
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 200
	}
	return &Chunker{size: size, overlap: overlap}
}

// normalizeWhitespace collapses all whitespace runs to single spaces and
// trims the ends.
func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split chunks the text. Empty or whitespace-only input produces no
// chunks; input at or under the chunk size produces exactly one.
//
// Longer input is cut into windows of the chunk size. Each window prefers
// to end at a sentence terminator, then at a whitespace, as long as the
// boundary falls in the second half of the window; otherwise it is a hard
// cut. The next window starts an overlap's worth of characters before the
// previous end, so adjacent chunks share context.
func (c *Chunker) Split(text string) []string {
	norm := normalizeWhitespace(text)
	if norm == "" {
		return nil
	}

	runes := []rune(norm)
	n := len(runes)
	if n <= c.size {
		return []string{norm}
	}

	var chunks []string
	start := 0
	for start < n-c.overlap {
		end := start + c.size
		if end >= n {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:n])))
			break
		}
		cut := c.boundary(runes, start, end)
		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))
		start = cut - c.overlap
	}
	return chunks
}

// boundary picks the cut position for the window [start, end). A sentence
// terminator followed by a space wins, then a plain space; both only count
// in the second half of the window. With neither, the cut is hard at end.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	half := start + c.size/2

	for i := end - 1; i > half; i-- {
		if isSentenceTerminator(runes[i]) && runes[i+1] == ' ' {
			return i + 1
		}
	}
	for i := end - 1; i > half; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
