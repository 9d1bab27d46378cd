// Package catalog exposes the files under the media root. Every call reads
// the directory tree afresh, so results always match what is on disk.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
	"github.com/abdul-hamid-achik/frameset/internal/processor/video"
)

var (
	ErrInvalidPath = errors.New("catalog: path escapes media root")
	ErrNotFound    = errors.New("catalog: file not found")
)

type Kind string

const (
	KindOriginalImage  Kind = "original_image"
	KindExtractedFrame Kind = "extracted_frame"
)

type Entry struct {
	Path      string    `json:"path"`
	JobID     string    `json:"job_id"`
	Kind      Kind      `json:"kind"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Folder struct {
	ID        string  `json:"folder_id"`
	Files     []Entry `json:"files"`
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
}

type Stats struct {
	JobID       string         `json:"job_id"`
	TotalFiles  int            `json:"total_files"`
	TotalBytes  int64          `json:"total_bytes"`
	Images      int            `json:"images"`
	Frames      int            `json:"frames"`
	ByExtension map[string]int `json:"by_extension"`
}

type Catalog struct {
	root      string
	imageExts map[string]struct{}
}

func New(root string, imageExts []string) *Catalog {
	exts := make(map[string]struct{}, len(imageExts)+1)
	for _, e := range imageExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	// frames are always JPEG
	exts[".jpg"] = struct{}{}
	return &Catalog{root: root, imageExts: exts}
}

func (c *Catalog) Root() string {
	return c.root
}

// List returns every complete file under the media root sorted by path.
// Files and directories that vanish during the walk are skipped.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	return c.walk(ctx, c.root)
}

// ListImages is List restricted to image files.
func (c *Catalog) ListImages(ctx context.Context) ([]Entry, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if c.IsImage(e.Path) {
			out = append(out, e)
		}
	}
	return out, nil
}

// IsImage reports whether rel has one of the catalog's image extensions.
func (c *Catalog) IsImage(rel string) bool {
	_, ok := c.imageExts[strings.ToLower(path.Ext(rel))]
	return ok
}

func (c *Catalog) walk(ctx context.Context, dir string) ([]Entry, error) {
	entries := []Entry{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if p == dir {
				return err
			}
			logger.FromContext(ctx).Warn("catalog walk skipped path", "path", p, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || processor.IsPartial(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return nil
		}
		entries = append(entries, c.entry(filepath.ToSlash(rel), info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (c *Catalog) entry(rel string, info fs.FileInfo) Entry {
	e := Entry{
		Path:      rel,
		Kind:      KindOriginalImage,
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}
	if i := strings.IndexByte(rel, '/'); i > 0 {
		e.JobID = rel[:i]
	}
	if video.IsFrameName(rel) {
		e.Kind = KindExtractedFrame
	}
	return e
}

// Resolve maps a catalog path to its location on disk.
func (c *Catalog) Resolve(rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) || strings.Contains(rel, `\`) {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(strings.TrimPrefix(rel, "./"))
	if cleaned == "." || path.IsAbs(cleaned) || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(c.root, filepath.FromSlash(cleaned)), nil
}

// Delete removes one file. Deleting an absent file reports ErrNotFound, so a
// retried delete is safe and tells the caller the file is already gone.
func (c *Catalog) Delete(ctx context.Context, rel string) error {
	p, err := c.Resolve(rel)
	if err != nil {
		metrics.RecordCatalogDeletion("file", "invalid")
		return err
	}

	info, err := os.Lstat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordCatalogDeletion("file", "not_found")
			return ErrNotFound
		}
		return fmt.Errorf("catalog: delete %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		metrics.RecordCatalogDeletion("file", "invalid")
		return ErrInvalidPath
	}

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordCatalogDeletion("file", "not_found")
			return ErrNotFound
		}
		metrics.RecordCatalogDeletion("file", "error")
		return fmt.Errorf("catalog: delete %s: %w", rel, err)
	}

	metrics.RecordCatalogDeletion("file", "success")
	logger.FromContext(ctx).Info("catalog file deleted", "path", rel)
	return nil
}

func (c *Catalog) folderPath(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", ErrInvalidPath
	}
	return c.Resolve(jobID)
}

// DeleteFolder removes a job's output directory and everything in it. Files
// already removed, or removed concurrently, do not cause an error; only a
// folder that does not exist at all reports ErrNotFound.
func (c *Catalog) DeleteFolder(ctx context.Context, jobID string) error {
	p, err := c.folderPath(jobID)
	if err != nil {
		metrics.RecordCatalogDeletion("folder", "invalid")
		return err
	}

	info, err := os.Lstat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordCatalogDeletion("folder", "not_found")
			return ErrNotFound
		}
		return fmt.Errorf("catalog: delete folder %s: %w", jobID, err)
	}
	if !info.IsDir() {
		metrics.RecordCatalogDeletion("folder", "invalid")
		return ErrInvalidPath
	}

	if err := os.RemoveAll(p); err != nil {
		metrics.RecordCatalogDeletion("folder", "error")
		return fmt.Errorf("catalog: delete folder %s: %w", jobID, err)
	}

	metrics.RecordCatalogDeletion("folder", "success")
	logger.FromContext(ctx).Info("catalog folder deleted", "job_id", jobID)
	return nil
}

// Folders groups the catalog by job directory.
func (c *Catalog) Folders(ctx context.Context) ([]Folder, error) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Folder{}, nil
		}
		return nil, fmt.Errorf("catalog: folders: %w", err)
	}

	folders := make([]Folder, 0, len(dirs))
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := c.walk(ctx, filepath.Join(c.root, d.Name()))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		f := Folder{ID: d.Name(), Files: files, FileCount: len(files)}
		for _, e := range files {
			f.TotalSize += e.Size
		}
		folders = append(folders, f)
	}
	return folders, nil
}

// Stats summarises one job folder.
func (c *Catalog) Stats(ctx context.Context, jobID string) (*Stats, error) {
	p, err := c.folderPath(jobID)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(p); err != nil || !info.IsDir() {
		return nil, ErrNotFound
	}

	files, err := c.walk(ctx, p)
	if err != nil {
		return nil, err
	}

	s := &Stats{JobID: jobID, ByExtension: make(map[string]int)}
	for _, e := range files {
		s.TotalFiles++
		s.TotalBytes += e.Size
		s.ByExtension[strings.ToLower(path.Ext(e.Path))]++
		if e.Kind == KindExtractedFrame {
			s.Frames++
		} else {
			s.Images++
		}
	}
	return s, nil
}
