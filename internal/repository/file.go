package repository

import (
	"context"

	"filevault/internal/model"
)

// Package repository contains the metadata store abstraction.
// Implementations live in subpackages (e.g., postgres) and hold SQL only —
// no business logic.

// EntityQuery selects the file records belonging to one owning entity.
// DocumentType is optional; empty means all document types for the entity.
type EntityQuery struct {
	EntityType   string
	EntityID     int64
	DocumentType string
}

// FileRepository defines data access for file metadata records.
type FileRepository interface {
	// Insert stores a new record and returns it with the store-assigned
	// identifier and upload timestamp populated.
	Insert(ctx context.Context, rec *model.FileRecord) (*model.FileRecord, error)

	// FindByID returns a record by its identifier. A missing row surfaces as
	// sql.ErrNoRows.
	FindByID(ctx context.Context, id int64) (*model.FileRecord, error)

	// ListByEntity returns the entity's records ordered newest-first by
	// upload time.
	ListByEntity(ctx context.Context, q EntityQuery) ([]model.FileRecord, error)

	// Delete removes a record by identifier. A missing row surfaces as
	// sql.ErrNoRows so callers can distinguish idempotent repeats.
	Delete(ctx context.Context, id int64) error

	// ExistsByStoragePath reports whether any record references the given
	// blob path. Used by the orphan reconciliation sweep.
	ExistsByStoragePath(ctx context.Context, path string) (bool, error)
}
