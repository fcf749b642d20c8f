package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"filevault/internal/digest"
	"filevault/internal/model"
	"filevault/internal/repository"
	"filevault/internal/storage"
)

var (
	ErrIDRequired     = errors.New("id is required")
	ErrNotFound       = errors.New("file not found")
	ErrReaderNil      = errors.New("reader is nil")
	ErrEntityRequired = errors.New("entity type and id are required")
	ErrFolderRequired = errors.New("folder is required")

	// ErrMetadataFailed means the blob was written but its metadata record was
	// not. The blob is deliberately left in place (no rollback) and reclaimed
	// by the reconciliation sweep; callers must not retry blindly.
	ErrMetadataFailed = errors.New("metadata save failed after upload")
)

// IngestRequest carries everything the ingestion pipeline needs for one upload.
// Entity scope is explicit per call — there is no ambient "current entity".
type IngestRequest struct {
	Reader       io.Reader
	FileName     string
	MimeType     string
	DocumentType string
	EntityType   string
	EntityID     int64
	UploadedBy   int64
	Notes        string
}

// ReconcileReport summarizes one orphan-blob sweep.
type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// FileService defines the use cases for handling entity-scoped files.
type FileService interface {
	// Ingest uploads the content to object storage, computes its digest, and
	// saves metadata to the DB. A failed metadata save leaves the blob in
	// place as a documented orphan (see ErrMetadataFailed).
	Ingest(ctx context.Context, req IngestRequest) (*model.FileRecord, error)

	// Get returns a single record by its ID.
	Get(ctx context.Context, id int64) (*model.FileRecord, error)

	// ListByEntity returns the entity's records, newest upload first.
	// documentType is optional; empty means all types.
	ListByEntity(ctx context.Context, entityType string, entityID int64, documentType string) ([]model.FileRecord, error)

	// DownloadURL returns a time-limited signed URL for the record's blob.
	DownloadURL(ctx context.Context, id int64, expiry time.Duration) (string, error)

	// Delete removes a record and its blob. Blob removal is best-effort;
	// metadata removal is authoritative.
	Delete(ctx context.Context, id int64) error

	// ReconcileOrphans removes blobs under the folder that have no metadata
	// record and are older than the grace window.
	ReconcileOrphans(ctx context.Context, folder string, olderThan time.Duration) (ReconcileReport, error)
}

// fileService is a concrete implementation of FileService.
type fileService struct {
	store    storage.Storage
	repo     repository.FileRepository
	digester digest.Digester
	metrics  *Metrics
	now      func() time.Time
}

// NewFileService constructs a new FileService. metrics may be nil.
func NewFileService(store storage.Storage, repo repository.FileRepository, d digest.Digester, m *Metrics) FileService {
	return &fileService{store: store, repo: repo, digester: d, metrics: m, now: time.Now}
}

func (s *fileService) Ingest(ctx context.Context, req IngestRequest) (*model.FileRecord, error) {
	if req.Reader == nil {
		return nil, ErrReaderNil
	}
	if req.EntityType == "" || req.EntityID <= 0 {
		return nil, ErrEntityRequired
	}

	// Buffer the upload once; the same bytes feed the store and the digest,
	// and the buffered length is the authoritative size.
	data, err := io.ReadAll(req.Reader)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	size := int64(len(data))

	key := buildObjectKey(folderFor(req.DocumentType), s.now(), req.FileName)

	objInfo, err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		Size:        size,
		ContentType: req.MimeType,
		Metadata: map[string]string{
			"original-filename": req.FileName,
		},
	})
	if err != nil {
		// Nothing persisted; the whole operation is safe to retry.
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	dg := model.UnverifiedDigest()
	if hexSum, err := s.digester.Hex(bytes.NewReader(data)); err != nil {
		// Non-fatal: availability wins over verification.
		s.metrics.incDigestFailures()
		logWarn("digest_failed", map[string]any{
			"storage_path": objInfo.Key,
			"error":        err.Error(),
		})
	} else {
		dg = model.VerifiedDigest(hexSum)
	}

	rec := &model.FileRecord{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		DocumentType: req.DocumentType,
		FileName:     req.FileName,
		MimeType:     req.MimeType,
		StoragePath:  objInfo.Key,
		SizeBytes:    size,
		Digest:       dg,
		Notes:        req.Notes,
		UploadedBy:   req.UploadedBy,
	}
	stored, err := s.repo.Insert(ctx, rec)
	if err != nil {
		// The blob at key is now an orphan. It is NOT deleted here: the sweep
		// reclaims it out-of-band, and a rollback delete could itself fail and
		// leave the same state with less visibility.
		s.metrics.incOrphanedBlobs()
		logWarn("orphan_blob_created", map[string]any{
			"storage_path": objInfo.Key,
			"entity_type":  req.EntityType,
			"entity_id":    req.EntityID,
			"error":        err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrMetadataFailed, err)
	}

	s.metrics.incIngested()
	return stored, nil
}

// Get returns a record by ID.
func (s *fileService) Get(ctx context.Context, id int64) (*model.FileRecord, error) {
	if id <= 0 {
		return nil, ErrIDRequired
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListByEntity returns the entity's records without exposing repository types.
func (s *fileService) ListByEntity(ctx context.Context, entityType string, entityID int64, documentType string) ([]model.FileRecord, error) {
	if entityType == "" || entityID <= 0 {
		return nil, ErrEntityRequired
	}
	return s.repo.ListByEntity(ctx, repository.EntityQuery{
		EntityType:   entityType,
		EntityID:     entityID,
		DocumentType: documentType,
	})
}

// DownloadURL resolves the record and presigns its blob.
func (s *fileService) DownloadURL(ctx context.Context, id int64, expiry time.Duration) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = storage.DefaultPresignExpiry
	}
	return s.store.PresignGet(ctx, rec.StoragePath, expiry)
}

// Delete removes the blob (best-effort) and then the record (authoritative).
func (s *fileService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrIDRequired
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	// A blob that cannot be deleted is the lesser harm: it becomes sweepable.
	// A record that cannot be deleted would keep a phantom file visible, so
	// metadata deletion below decides success.
	if err := s.store.Delete(ctx, rec.StoragePath); err != nil {
		s.metrics.incBlobDeleteFailures()
		logWarn("blob_delete_failed", map[string]any{
			"file_id":      id,
			"storage_path": rec.StoragePath,
			"error":        err.Error(),
		})
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

// ReconcileOrphans sweeps blobs without metadata. Objects younger than
// olderThan are skipped — they may belong to an ingest still in flight.
func (s *fileService) ReconcileOrphans(ctx context.Context, folder string, olderThan time.Duration) (ReconcileReport, error) {
	var report ReconcileReport
	if folder == "" {
		return report, ErrFolderRequired
	}

	prefix := strings.TrimSuffix(folder, "/") + "/"
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return report, fmt.Errorf("list storage: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	for _, obj := range objects {
		report.Scanned++
		if obj.LastModified.After(cutoff) {
			continue
		}
		exists, err := s.repo.ExistsByStoragePath(ctx, obj.Key)
		if err != nil {
			report.Failed++
			continue
		}
		if exists {
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			report.Failed++
			logWarn("orphan_sweep_delete_failed", map[string]any{
				"storage_path": obj.Key,
				"error":        err.Error(),
			})
			continue
		}
		report.Removed++
		s.metrics.incOrphansSwept()
	}
	return report, nil
}
