package models

import "time"

// GeneratedImage is one stored candidate image. Immutable after insert.
type GeneratedImage struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"requestId"`
	IterationNumber int       `json:"iterationNumber"`
	StorageKey      string    `json:"storageKey"`
	PublicURL       string    `json:"publicUrl"`
	PromptUsed      string    `json:"promptUsed"`
	MimeType        string    `json:"mimeType"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	CreatedAt       time.Time `json:"createdAt"`
}
