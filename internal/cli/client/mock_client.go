package client

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of ClientInterface.
type MockClient struct {
	mock.Mock
}

var _ ClientInterface = (*MockClient)(nil)

func (m *MockClient) BaseURL() string {
	return m.Called().String(0)
}

func (m *MockClient) Upload(ctx context.Context, filePath string, opts UploadOptions, progress io.Writer) (*UploadResponse, error) {
	args := m.Called(ctx, filePath, opts, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UploadResponse), args.Error(1)
}

func (m *MockClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func (m *MockClient) ListJobs(ctx context.Context, limit, offset int, status string) (*JobList, error) {
	args := m.Called(ctx, limit, offset, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobList), args.Error(1)
}

func (m *MockClient) JobStats(ctx context.Context, jobID string) (*JobStats, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobStats), args.Error(1)
}

func (m *MockClient) WaitForJob(ctx context.Context, jobID string, pollInterval time.Duration, timeout time.Duration) (*Job, error) {
	args := m.Called(ctx, jobID, pollInterval, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func (m *MockClient) Catalog(ctx context.Context, jobID, kind string) (*CatalogResponse, error) {
	args := m.Called(ctx, jobID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CatalogResponse), args.Error(1)
}

func (m *MockClient) ListImages(ctx context.Context) (*ImagesResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ImagesResponse), args.Error(1)
}

func (m *MockClient) ListFolders(ctx context.Context) (*FoldersResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FoldersResponse), args.Error(1)
}

func (m *MockClient) ListUploads(ctx context.Context) (*UploadsResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UploadsResponse), args.Error(1)
}

func (m *MockClient) DeleteImage(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockClient) DeleteFolder(ctx context.Context, folderID string) error {
	return m.Called(ctx, folderID).Error(0)
}

func (m *MockClient) Thumbnail(ctx context.Context, path string, size int, w io.Writer) (int64, error) {
	args := m.Called(ctx, path, size, w)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockClient) DeleteUpload(ctx context.Context, filename string) error {
	return m.Called(ctx, filename).Error(0)
}

func (m *MockClient) Health(ctx context.Context) (*HealthResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*HealthResponse), args.Error(1)
}
