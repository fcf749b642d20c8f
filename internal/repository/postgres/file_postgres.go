package postgres

import (
	"context"
	"database/sql"

	"filevault/internal/model"
	"filevault/internal/repository"
)

// FilePostgres is a PostgreSQL implementation of repository.FileRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type FilePostgres struct {
	db *sql.DB
}

// NewFilePostgres creates a new FilePostgres repository.
func NewFilePostgres(db *sql.DB) *FilePostgres {
	return &FilePostgres{db: db}
}

var _ repository.FileRepository = (*FilePostgres)(nil)

const fileColumns = `id, entity_type, entity_id, document_type, file_name, mime_type, storage_path, size_bytes, content_digest, notes, uploaded_by, uploaded_at`

// Insert stores a new file row. The id and uploaded_at come back from the
// database; a NULL content_digest marks an unverified record.
func (r *FilePostgres) Insert(ctx context.Context, rec *model.FileRecord) (*model.FileRecord, error) {
	const q = `
		INSERT INTO files (entity_type, entity_id, document_type, file_name, mime_type, storage_path, size_bytes, content_digest, notes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + fileColumns

	digest := sql.NullString{String: rec.Digest.Hex, Valid: rec.Digest.Verified}
	row := r.db.QueryRowContext(ctx, q,
		rec.EntityType,
		rec.EntityID,
		rec.DocumentType,
		rec.FileName,
		rec.MimeType,
		rec.StoragePath,
		rec.SizeBytes,
		digest,
		rec.Notes,
		rec.UploadedBy,
	)
	return scanFile(row)
}

// FindByID fetches a single file record by its identifier.
func (r *FilePostgres) FindByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	const q = `
		SELECT ` + fileColumns + `
		FROM files
		WHERE id = $1
	`
	return scanFile(r.db.QueryRowContext(ctx, q, id))
}

// ListByEntity returns the entity's records, newest upload first.
// An empty DocumentType matches all document types.
func (r *FilePostgres) ListByEntity(ctx context.Context, eq repository.EntityQuery) ([]model.FileRecord, error) {
	const q = `
		SELECT ` + fileColumns + `
		FROM files
		WHERE entity_type = $1 AND entity_id = $2 AND ($3 = '' OR document_type = $3)
		ORDER BY uploaded_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, eq.EntityType, eq.EntityID, eq.DocumentType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.FileRecord, 0)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a file row by identifier. A missing row is reported as
// sql.ErrNoRows so deletion stays observably idempotent at the caller.
func (r *FilePostgres) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExistsByStoragePath reports whether any row references the blob path.
func (r *FilePostgres) ExistsByStoragePath(ctx context.Context, path string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM files WHERE storage_path = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, path).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.FileRecord, error) {
	var (
		rec    model.FileRecord
		digest sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.EntityType,
		&rec.EntityID,
		&rec.DocumentType,
		&rec.FileName,
		&rec.MimeType,
		&rec.StoragePath,
		&rec.SizeBytes,
		&digest,
		&rec.Notes,
		&rec.UploadedBy,
		&rec.UploadedAt,
	); err != nil {
		return nil, err
	}
	if digest.Valid {
		rec.Digest = model.VerifiedDigest(digest.String)
	} else {
		rec.Digest = model.UnverifiedDigest()
	}
	return &rec, nil
}
