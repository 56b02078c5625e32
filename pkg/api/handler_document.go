package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/storage"
)

// maxDocumentBytes caps uploaded document size.
const maxDocumentBytes = 10 << 20

// uploadDocumentHandler handles POST /api/v1/agents/:id/documents. The file
// is stored first, then registered as a pending document; chunking and
// embedding run in the background and flip the document to indexed or
// failed. Document content is treated as UTF-8 text.
func (s *Server) uploadDocumentHandler(c *gin.Context) {
	agentID := c.Param("id")

	agent, err := s.deps.Agents.Get(c.Request.Context(), agentID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	if fileHeader.Size > maxDocumentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document exceeds the 10 MiB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	if len(content) > maxDocumentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document exceeds the 10 MiB limit"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	key := storage.DocumentKey(agent.OrganizationID, agentID, fileHeader.Filename)
	if _, err := s.deps.Store.Put(c.Request.Context(), key, content, contentType); err != nil {
		abortWithServiceError(c, err)
		return
	}

	doc, err := s.deps.Documents.Create(c.Request.Context(), agentID, fileHeader.Filename, key, contentType, int64(len(content)))
	if err != nil {
		// Leave no orphaned object behind when the row insert fails.
		if removeErr := s.deps.Store.Remove(c.Request.Context(), key); removeErr != nil {
			slog.Error("Failed to remove stored object after document create failure",
				"key", key, "error", removeErr)
		}
		abortWithServiceError(c, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.deps.Indexer.IndexDocument(ctx, doc, string(content)); err != nil {
			slog.Error("Document indexing failed",
				"document_id", doc.ID,
				"agent_id", agentID,
				"error", err)
		}
	}()

	c.JSON(http.StatusCreated, doc)
}

// listDocumentsHandler handles GET /api/v1/agents/:id/documents.
func (s *Server) listDocumentsHandler(c *gin.Context) {
	agentID := c.Param("id")

	if _, err := s.deps.Agents.Get(c.Request.Context(), agentID); err != nil {
		abortWithServiceError(c, err)
		return
	}

	docs, err := s.deps.Documents.ListByAgent(c.Request.Context(), agentID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": len(docs)})
}

// deleteDocumentHandler handles DELETE /api/v1/agents/:id/documents/:docId.
// The chunk rows cascade with the document row; the stored object is
// removed best-effort.
func (s *Server) deleteDocumentHandler(c *gin.Context) {
	agentID := c.Param("id")
	docID := c.Param("docId")

	doc, err := s.deps.Documents.Get(c.Request.Context(), docID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if doc.AgentID != agentID {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found for this agent"})
		return
	}

	if err := s.deps.Documents.Delete(c.Request.Context(), docID); err != nil {
		abortWithServiceError(c, err)
		return
	}
	if err := s.deps.Store.Remove(c.Request.Context(), doc.StorageKey); err != nil {
		slog.Warn("Failed to remove stored document object",
			"document_id", docID,
			"key", doc.StorageKey,
			"error", err)
	}
	c.Status(http.StatusNoContent)
}
