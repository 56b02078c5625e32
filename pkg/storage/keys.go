package storage

import (
	"fmt"
	"strings"
	"time"
)

// ImageKey builds the object key for a generated image. The extension
// follows the MIME type, defaulting to jpg.
func ImageKey(orgID, requestID, imageID, mimeType string) string {
	return fmt.Sprintf("image-generation/%s/%s/%s.%s", orgID, requestID, imageID, extensionFor(mimeType))
}

// DocumentKey builds the object key for an uploaded agent document. A
// timestamp prefix keeps re-uploads of the same filename distinct.
func DocumentKey(orgID, agentID, filename string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("agent-documents/%s/%s/%s-%s", orgID, agentID, ts, sanitizeFilename(filename))
}

// ComplianceImageKey builds the object key for a user-uploaded reference
// image, named by a fresh UUID to avoid collisions.
func ComplianceImageKey(orgID, id, mimeType string) string {
	return fmt.Sprintf("compliance-images/%s/%s.%s", orgID, id, extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	return name
}
