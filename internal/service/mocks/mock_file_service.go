package mocks

import (
	"context"
	"time"

	"filevault/internal/model"
	"filevault/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockFileService struct {
	mock.Mock
}

func (m *MockFileService) Ingest(ctx context.Context, req service.IngestRequest) (*model.FileRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileService) Get(ctx context.Context, id int64) (*model.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileService) ListByEntity(ctx context.Context, entityType string, entityID int64, documentType string) ([]model.FileRecord, error) {
	args := m.Called(ctx, entityType, entityID, documentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FileRecord), args.Error(1)
}

func (m *MockFileService) DownloadURL(ctx context.Context, id int64, expiry time.Duration) (string, error) {
	args := m.Called(ctx, id, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockFileService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFileService) ReconcileOrphans(ctx context.Context, folder string, olderThan time.Duration) (service.ReconcileReport, error) {
	args := m.Called(ctx, folder, olderThan)
	return args.Get(0).(service.ReconcileReport), args.Error(1)
}
