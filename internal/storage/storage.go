package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound      = errors.New("storage: file not found")
	ErrAlreadyExists = errors.New("storage: file already exists")
	ErrInvalidKey    = errors.New("storage: invalid key")
	ErrAccessDenied  = errors.New("storage: access denied")
)

type Object struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key, returning ErrNotFound if it does not exist.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	HealthCheck(ctx context.Context) error
}

// LocalPather is implemented by backends whose objects are plain files, so
// readers can open them in place instead of downloading a copy.
type LocalPather interface {
	LocalPath(key string) (string, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}
