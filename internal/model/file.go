package model

import "time"

// FileRecord represents a stored file and its descriptive metadata.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
//
// A record with a non-empty StoragePath implies a blob exists at that path
// in the configured bucket, except while a complete-delete is in flight.
type FileRecord struct {
	ID           int64     `json:"id"`
	EntityType   string    `json:"entity_type"`
	EntityID     int64     `json:"entity_id"`
	DocumentType string    `json:"document_type"`
	FileName     string    `json:"file_name"`
	MimeType     string    `json:"mime_type"`
	StoragePath  string    `json:"storage_path"`
	SizeBytes    int64     `json:"size_bytes"`
	Digest       Digest    `json:"digest"`
	Notes        string    `json:"notes,omitempty"`
	UploadedBy   int64     `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}
