package client

import (
	"context"
	"io"
	"time"
)

// ClientInterface lets commands run against a mock in tests.
type ClientInterface interface {
	BaseURL() string

	Upload(ctx context.Context, filePath string, opts UploadOptions, progress io.Writer) (*UploadResponse, error)

	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, limit, offset int, status string) (*JobList, error)
	JobStats(ctx context.Context, jobID string) (*JobStats, error)
	WaitForJob(ctx context.Context, jobID string, pollInterval time.Duration, timeout time.Duration) (*Job, error)

	Catalog(ctx context.Context, jobID, kind string) (*CatalogResponse, error)
	ListImages(ctx context.Context) (*ImagesResponse, error)
	ListFolders(ctx context.Context) (*FoldersResponse, error)
	ListUploads(ctx context.Context) (*UploadsResponse, error)
	Thumbnail(ctx context.Context, path string, size int, w io.Writer) (int64, error)

	DeleteImage(ctx context.Context, path string) error
	DeleteFolder(ctx context.Context, folderID string) error
	DeleteUpload(ctx context.Context, filename string) error

	Health(ctx context.Context) (*HealthResponse, error)
}

var _ ClientInterface = (*Client)(nil)
