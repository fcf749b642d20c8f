package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"filevault/internal/digest"
	digestMocks "filevault/internal/digest/mocks"
	"filevault/internal/model"
	"filevault/internal/repository"
	repoMocks "filevault/internal/repository/mocks"
	"filevault/internal/storage"
	storeMocks "filevault/internal/storage/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const spiClaimsDigest = "a812a69ba6858a54cefdb2fc3882e7ceb7d66aa1ed792562082872dd6ed4f921" // sha256("<a></a>")

func newTestService(t *testing.T, store storage.Storage, repo repository.FileRepository, d digest.Digester) (*fileService, *Metrics) {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	svc := NewFileService(store, repo, d, m).(*fileService)
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return svc, m
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestFileService_Ingest(t *testing.T) {
	ctx := context.Background()

	baseReq := func(r io.Reader) IngestRequest {
		return IngestRequest{
			Reader:       r,
			FileName:     "SPI_Claims.xml",
			MimeType:     "text/xml",
			DocumentType: "SPI File",
			EntityType:   "organization",
			EntityID:     1,
			UploadedBy:   42,
		}
	}

	t.Run("happy path", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockFileRepository)
		svc, m := newTestService(t, mStore, mRepo, digest.NewSHA256())

		mStore.On("Put", ctx, "spi-files/1700000000123_SPI_Claims.xml", mock.Anything, storage.PutOptions{
			Size:        7,
			ContentType: "text/xml",
			Metadata:    map[string]string{"original-filename": "SPI_Claims.xml"},
		}).Return(storage.ObjectInfo{Key: "spi-files/1700000000123_SPI_Claims.xml", Size: 7}, nil)

		mRepo.On("Insert", ctx, mock.MatchedBy(func(rec *model.FileRecord) bool {
			return rec.StoragePath == "spi-files/1700000000123_SPI_Claims.xml" &&
				rec.SizeBytes == 7 &&
				rec.Digest.Verified &&
				rec.Digest.Hex == spiClaimsDigest &&
				rec.EntityType == "organization" &&
				rec.EntityID == 1 &&
				rec.DocumentType == "SPI File" &&
				rec.UploadedBy == 42
		})).Return(func(ctx context.Context, rec *model.FileRecord) *model.FileRecord {
			stored := *rec
			stored.ID = 7
			stored.UploadedAt = time.UnixMilli(1700000000200)
			return &stored
		}, nil)

		rec, err := svc.Ingest(ctx, baseReq(strings.NewReader("<a></a>")))

		assert.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(7), rec.ID)
		assert.Equal(t, "SPI_Claims.xml", rec.FileName)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.filesIngested))

		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("nil reader", func(t *testing.T) {
		svc, _ := newTestService(t, new(storeMocks.MockStorage), new(repoMocks.MockFileRepository), digest.NewSHA256())

		rec, err := svc.Ingest(ctx, baseReq(nil))

		assert.ErrorIs(t, err, ErrReaderNil)
		assert.Nil(t, rec)
	})

	t.Run("missing entity", func(t *testing.T) {
		svc, _ := newTestService(t, new(storeMocks.MockStorage), new(repoMocks.MockFileRepository), digest.NewSHA256())

		req := baseReq(strings.NewReader("x"))
		req.EntityType = ""

		_, err := svc.Ingest(ctx, req)
		assert.ErrorIs(t, err, ErrEntityRequired)
	})

	t.Run("unreadable upload", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc, _ := newTestService(t, mStore, new(repoMocks.MockFileRepository), digest.NewSHA256())

		_, err := svc.Ingest(ctx, baseReq(failingReader{}))

		assert.ErrorContains(t, err, "read upload")
		mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("storage error aborts before metadata", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockFileRepository)
		svc, _ := newTestService(t, mStore, mRepo, digest.NewSHA256())

		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("storage fail"))

		_, err := svc.Ingest(ctx, baseReq(strings.NewReader("<a></a>")))

		assert.ErrorContains(t, err, "upload to storage: storage fail")
		mRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("path conflict stays detectable", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc, _ := newTestService(t, mStore, new(repoMocks.MockFileRepository), digest.NewSHA256())

		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{}, storage.ErrPathConflict)

		_, err := svc.Ingest(ctx, baseReq(strings.NewReader("<a></a>")))

		assert.ErrorIs(t, err, storage.ErrPathConflict)
	})

	t.Run("digest failure degrades to unverified", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockFileRepository)
		mDigest := new(digestMocks.MockDigester)
		svc, m := newTestService(t, mStore, mRepo, mDigest)

		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutOptions) storage.ObjectInfo {
				return storage.ObjectInfo{Key: key}
			}, nil)
		mDigest.On("Hex", mock.Anything).Return("", digest.ErrUnavailable)
		mRepo.On("Insert", ctx, mock.MatchedBy(func(rec *model.FileRecord) bool {
			return !rec.Digest.Verified && rec.Digest.Hex == ""
		})).Return(&model.FileRecord{ID: 1, Digest: model.UnverifiedDigest()}, nil)

		rec, err := svc.Ingest(ctx, baseReq(strings.NewReader("<a></a>")))

		assert.NoError(t, err)
		require.NotNil(t, rec)
		assert.False(t, rec.Digest.Verified)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.digestFailures))
		mRepo.AssertExpectations(t)
	})

	t.Run("metadata failure leaves observable orphan", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockFileRepository)
		svc, m := newTestService(t, mStore, mRepo, digest.NewSHA256())

		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(func(ctx context.Context, key string, r io.Reader, opt storage.PutOptions) storage.ObjectInfo {
				return storage.ObjectInfo{Key: key}
			}, nil)
		mRepo.On("Insert", ctx, mock.Anything).Return(nil, errors.New("db fail"))

		_, err := svc.Ingest(ctx, baseReq(strings.NewReader("<a></a>")))

		assert.ErrorIs(t, err, ErrMetadataFailed)
		// The blob must stay put: no rollback delete, only the counter moves.
		mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.orphanedBlobs))
	})
}

func TestFileService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mRepo *repoMocks.MockFileRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   3,
			setupMocks: func(mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(3)).Return(&model.FileRecord{ID: 3}, nil)
			},
		},
		{
			name:       "validation - zero id",
			id:         0,
			setupMocks: func(mRepo *repoMocks.MockFileRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found - mapping sql.ErrNoRows",
			id:   99,
			setupMocks: func(mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(99)).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   4,
			setupMocks: func(mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(4)).Return(nil, errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockFileRepository)
			svc, _ := newTestService(t, nil, mRepo, digest.NewSHA256())

			tt.setupMocks(mRepo)

			rec, err := svc.Get(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrIDRequired) || errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
				}
				assert.Nil(t, rec)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, rec)
				assert.Equal(t, tt.id, rec.ID)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestFileService_ListByEntity(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path with document type filter", func(t *testing.T) {
		mRepo := new(repoMocks.MockFileRepository)
		svc, _ := newTestService(t, nil, mRepo, digest.NewSHA256())

		mRepo.On("ListByEntity", ctx, repository.EntityQuery{
			EntityType:   "organization",
			EntityID:     1,
			DocumentType: "SPI File",
		}).Return([]model.FileRecord{{ID: 2}, {ID: 1}}, nil)

		items, err := svc.ListByEntity(ctx, "organization", 1, "SPI File")

		assert.NoError(t, err)
		assert.Len(t, items, 2)
		mRepo.AssertExpectations(t)
	})

	t.Run("validation - missing entity", func(t *testing.T) {
		svc, _ := newTestService(t, nil, new(repoMocks.MockFileRepository), digest.NewSHA256())

		_, err := svc.ListByEntity(ctx, "", 1, "")
		assert.ErrorIs(t, err, ErrEntityRequired)

		_, err = svc.ListByEntity(ctx, "organization", 0, "")
		assert.ErrorIs(t, err, ErrEntityRequired)
	})

	t.Run("repository error", func(t *testing.T) {
		mRepo := new(repoMocks.MockFileRepository)
		svc, _ := newTestService(t, nil, mRepo, digest.NewSHA256())

		mRepo.On("ListByEntity", ctx, mock.Anything).Return(nil, errors.New("db fail"))

		_, err := svc.ListByEntity(ctx, "organization", 1, "")
		assert.Error(t, err)
	})
}

func TestFileService_DownloadURL(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path with default expiry", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockFileRepository)
		svc, _ := newTestService(t, mStore, mRepo, digest.NewSHA256())

		mRepo.On("FindByID", ctx, int64(5)).Return(&model.FileRecord{ID: 5, StoragePath: "spi-files/1_a.xml"}, nil)
		mStore.On("PresignGet", ctx, "spi-files/1_a.xml", storage.DefaultPresignExpiry).
			Return("https://store.example/signed", nil)

		url, err := svc.DownloadURL(ctx, 5, 0)

		assert.NoError(t, err)
		assert.Equal(t, "https://store.example/signed", url)
		mStore.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockFileRepository)
		svc, _ := newTestService(t, new(storeMocks.MockStorage), mRepo, digest.NewSHA256())

		mRepo.On("FindByID", ctx, int64(5)).Return(nil, sql.ErrNoRows)

		_, err := svc.DownloadURL(ctx, 5, time.Minute)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository)
		wantErr    error
		wantErrMsg string
		wantWarns  float64
	}{
		{
			name: "happy path",
			id:   1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(1)).Return(&model.FileRecord{ID: 1, StoragePath: "spi-files/1_a.xml"}, nil)
				mStore.On("Delete", ctx, []string{"spi-files/1_a.xml"}).Return(nil)
				mRepo.On("Delete", ctx, int64(1)).Return(nil)
			},
		},
		{
			name:       "validation - zero id",
			id:         0,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found",
			id:   9,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(9)).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "blob delete failure does not block metadata delete",
			id:   2,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(2)).Return(&model.FileRecord{ID: 2, StoragePath: "batch-files/2_b.csv"}, nil)
				mStore.On("Delete", ctx, []string{"batch-files/2_b.csv"}).Return(errors.New("storage fail"))
				mRepo.On("Delete", ctx, int64(2)).Return(nil)
			},
			wantWarns: 1,
		},
		{
			name: "metadata delete failure is surfaced",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(3)).Return(&model.FileRecord{ID: 3, StoragePath: "p"}, nil)
				mStore.On("Delete", ctx, []string{"p"}).Return(nil)
				mRepo.On("Delete", ctx, int64(3)).Return(errors.New("db fail"))
			},
			wantErrMsg: "delete metadata: db fail",
		},
		{
			name: "record vanished between find and delete",
			id:   4,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockFileRepository) {
				mRepo.On("FindByID", ctx, int64(4)).Return(&model.FileRecord{ID: 4, StoragePath: "p"}, nil)
				mStore.On("Delete", ctx, []string{"p"}).Return(nil)
				mRepo.On("Delete", ctx, int64(4)).Return(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockFileRepository)
			svc, m := newTestService(t, mStore, mRepo, digest.NewSHA256())

			tt.setupMocks(mStore, mRepo)

			err := svc.Delete(ctx, tt.id)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrMsg != "":
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantWarns, testutil.ToFloat64(m.blobDeleteFailures))

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestFileService_Delete_Idempotent(t *testing.T) {
	// First delete succeeds; the second reports ErrNotFound, never a second
	// successful deletion.
	ctx := context.Background()
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockFileRepository)
	svc, _ := newTestService(t, mStore, mRepo, digest.NewSHA256())

	mRepo.On("FindByID", ctx, int64(1)).Return(&model.FileRecord{ID: 1, StoragePath: "p"}, nil).Once()
	mStore.On("Delete", ctx, []string{"p"}).Return(nil).Once()
	mRepo.On("Delete", ctx, int64(1)).Return(nil).Once()
	mRepo.On("FindByID", ctx, int64(1)).Return(nil, sql.ErrNoRows).Once()

	assert.NoError(t, svc.Delete(ctx, 1))
	assert.ErrorIs(t, svc.Delete(ctx, 1), ErrNotFound)
	mRepo.AssertExpectations(t)
}

func TestFileService_ReconcileOrphans(t *testing.T) {
	ctx := context.Background()

	t.Run("folder required", func(t *testing.T) {
		svc, _ := newTestService(t, new(storeMocks.MockStorage), new(repoMocks.MockFileRepository), digest.NewSHA256())

		_, err := svc.ReconcileOrphans(ctx, "", time.Hour)
		assert.ErrorIs(t, err, ErrFolderRequired)
	})

	t.Run("sweeps only stale unreferenced blobs", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockFileRepository)
		svc, m := newTestService(t, mStore, mRepo, digest.NewSHA256())

		now := svc.now()
		mStore.On("List", ctx, "spi-files/").Return([]storage.ObjectInfo{
			{Key: "spi-files/1_fresh.xml", LastModified: now.Add(-time.Minute)}, // inside grace window
			{Key: "spi-files/2_kept.xml", LastModified: now.Add(-2 * time.Hour)},
			{Key: "spi-files/3_orphan.xml", LastModified: now.Add(-2 * time.Hour)},
			{Key: "spi-files/4_unknown.xml", LastModified: now.Add(-2 * time.Hour)},
		}, nil)

		mRepo.On("ExistsByStoragePath", ctx, "spi-files/2_kept.xml").Return(true, nil)
		mRepo.On("ExistsByStoragePath", ctx, "spi-files/3_orphan.xml").Return(false, nil)
		mRepo.On("ExistsByStoragePath", ctx, "spi-files/4_unknown.xml").Return(false, errors.New("db fail"))
		mStore.On("Delete", ctx, []string{"spi-files/3_orphan.xml"}).Return(nil)

		report, err := svc.ReconcileOrphans(ctx, "spi-files", time.Hour)

		assert.NoError(t, err)
		assert.Equal(t, ReconcileReport{Scanned: 4, Removed: 1, Failed: 1}, report)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.orphansSwept))
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("list failure", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc, _ := newTestService(t, mStore, new(repoMocks.MockFileRepository), digest.NewSHA256())

		mStore.On("List", ctx, "batch-files/").Return(nil, errors.New("storage fail"))

		_, err := svc.ReconcileOrphans(ctx, "batch-files", time.Hour)
		assert.ErrorContains(t, err, "list storage")
	})
}
