package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

const archiveContentType = "application/zip"

// ArchiveStore retains uploaded archives under collision-free names:
// photos.zip, photos_1.zip, photos_2.zip, ...
type ArchiveStore struct {
	backend Storage

	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewArchiveStore(backend Storage) *ArchiveStore {
	return &ArchiveStore{
		backend:  backend,
		reserved: make(map[string]struct{}),
	}
}

// CleanName reduces a client-supplied file name to its base name and rejects
// names that cannot be stored.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		return "", ErrInvalidKey
	}
	return name, nil
}

// Save stores r under a free variant of name and returns the key used.
func (a *ArchiveStore) Save(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}

	key, err := a.reserve(ctx, name)
	if err != nil {
		return "", err
	}
	defer a.release(key)

	if err := a.backend.Upload(ctx, key, r, archiveContentType, size); err != nil {
		return "", err
	}
	return key, nil
}

func (a *ArchiveStore) reserve(ctx context.Context, name string) (string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; ; i++ {
		key := name
		if i > 0 {
			key = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		if _, taken := a.reserved[key]; taken {
			continue
		}
		exists, err := a.backend.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			a.reserved[key] = struct{}{}
			return key, nil
		}
	}
}

func (a *ArchiveStore) release(key string) {
	a.mu.Lock()
	delete(a.reserved, key)
	a.mu.Unlock()
}

func (a *ArchiveStore) List(ctx context.Context) ([]Object, error) {
	return a.backend.List(ctx, "")
}

func (a *ArchiveStore) Delete(ctx context.Context, name string) error {
	clean, err := CleanName(name)
	if err != nil || clean != name {
		return ErrInvalidKey
	}
	return a.backend.Delete(ctx, name)
}

// Open returns a local path for the archive at key. Archives on remote
// backends are copied into spoolDir first; cleanup reports whether the
// returned path is a temporary copy the caller must remove.
func (a *ArchiveStore) Open(ctx context.Context, key, spoolDir string) (string, func(), error) {
	if lp, ok := localPather(a.backend); ok {
		p, err := lp.LocalPath(key)
		if err != nil {
			return "", nil, err
		}
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return "", nil, ErrNotFound
			}
			return "", nil, err
		}
		return p, func() {}, nil
	}

	rc, err := a.backend.Download(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create spool dir: %w", err)
	}
	f, err := os.CreateTemp(spoolDir, "archive-*.zip")
	if err != nil {
		return "", nil, fmt.Errorf("create spool file: %w", err)
	}
	spooled := f.Name()
	cleanup := func() { _ = os.Remove(spooled) }

	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("spool %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("spool %s: %w", key, err)
	}
	return filepath.Clean(spooled), cleanup, nil
}

// localPather looks through wrappers such as metrics instrumentation for a
// backend that stores plain files.
func localPather(s Storage) (LocalPather, bool) {
	for {
		if lp, ok := s.(LocalPather); ok {
			return lp, true
		}
		u, ok := s.(interface{ Unwrap() Storage })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
}

func (a *ArchiveStore) HealthCheck(ctx context.Context) error {
	return a.backend.HealthCheck(ctx)
}
