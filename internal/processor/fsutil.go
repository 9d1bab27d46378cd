package processor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// PartialPrefix marks files that are still being written. Readers of the
// media root skip them.
const PartialPrefix = ".partial-"

var (
	ErrOutputMissing = fmt.Errorf("%w: output directory no longer exists", ErrWriteFailed)
	ErrOutputExists  = fmt.Errorf("%w: output file already exists", ErrWriteFailed)
)

func IsPartial(name string) bool {
	return strings.HasPrefix(filepath.Base(name), PartialPrefix)
}

// PrepareDest resolves rel under root and creates any missing parent
// directories below root, one level at a time. root itself is never
// recreated: if it was removed the write fails with ErrOutputMissing.
func PrepareDest(root, rel string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrOutputMissing
		}
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrWriteFailed, root)
	}

	rel = filepath.FromSlash(rel)
	if err := mkdirBelow(root, filepath.Dir(rel)); err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// mkdirBelow creates root/dir component by component. Unlike MkdirAll it
// fails when root disappears between steps instead of recreating it.
func mkdirBelow(root, dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	cur := filepath.Clean(root)
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		err := os.Mkdir(cur, 0o755)
		switch {
		case err == nil, errors.Is(err, fs.ErrExist):
		case errors.Is(err, fs.ErrNotExist):
			return ErrOutputMissing
		default:
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	}
	return nil
}

// WriteFile writes r to dst through a temporary sibling and links it into
// place, so dst is either absent or complete. An existing dst is left alone
// and reported as ErrOutputExists.
func WriteFile(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), PartialPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	err = place(tmpPath, dst)
	_ = os.Remove(tmpPath)
	if err != nil {
		return n, err
	}
	return n, nil
}

// place hard-links src at dst, which fails instead of replacing an existing
// file.
func place(src, dst string) error {
	err := os.Link(src, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %s", ErrOutputExists, filepath.Base(dst))
	default:
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
}

// MoveFile moves src to dst without replacing an existing dst, copying when
// they are on different filesystems.
func MoveFile(src, dst string) error {
	err := place(src, dst)
	if err == nil {
		_ = os.Remove(src)
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer f.Close()

	if _, err := WriteFile(dst, f); err != nil {
		return err
	}
	_ = os.Remove(src)
	return nil
}
