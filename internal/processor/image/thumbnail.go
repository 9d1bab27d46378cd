package image

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
)

const (
	MinThumbnailSize     = 16
	MaxThumbnailSize     = 1024
	DefaultThumbnailSize = 256

	defaultThumbnailQuality = 80
)

// Thumbnailer renders square JPEG previews of catalog images and keeps them
// in a cache directory outside the media root, so previews never show up in
// listings. A cached preview older than its source is rendered again.
type Thumbnailer struct {
	cacheDir string
	quality  int
	group    singleflight.Group
}

func NewThumbnailer(cacheDir string, quality int) *Thumbnailer {
	return &Thumbnailer{
		cacheDir: cacheDir,
		quality:  getQuality(quality, defaultThumbnailQuality),
	}
}

// Thumbnail returns the path of a size x size preview of src. rel is the
// source's catalog path and names the cache entry.
func (t *Thumbnailer) Thumbnail(ctx context.Context, src, rel string, size int, position string) (string, error) {
	if size < MinThumbnailSize || size > MaxThumbnailSize {
		return "", fmt.Errorf("%w: size must be between %d and %d", processor.ErrInvalidConfig, MinThumbnailSize, MaxThumbnailSize)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !srcInfo.Mode().IsRegular() {
		return "", fs.ErrNotExist
	}

	anchor, anchorName := getAnchor(position)
	dst := filepath.Join(t.cacheDir, strconv.Itoa(size), anchorName, filepath.FromSlash(rel)+".jpg")

	if info, err := os.Stat(dst); err == nil && !info.ModTime().Before(srcInfo.ModTime()) {
		return dst, nil
	}

	_, err, _ = t.group.Do(dst, func() (any, error) {
		return nil, t.render(ctx, src, dst, size, anchor)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

func (t *Thumbnailer) render(ctx context.Context, src, dst string, size int, anchor imaging.Anchor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}
	thumb := imaging.Fill(img, size, size, anchor, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: %v", processor.ErrWriteFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".thumb-*")
	if err != nil {
		return fmt.Errorf("%w: %v", processor.ErrWriteFailed, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := imaging.Encode(tmp, thumb, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: encode jpeg: %v", processor.ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", processor.ErrWriteFailed, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("%w: %v", processor.ErrWriteFailed, err)
	}

	logger.FromContext(ctx).Debug("thumbnail rendered", "path", dst, "size", size)
	return nil
}

// Purge drops every cached preview.
func (t *Thumbnailer) Purge() error {
	if err := os.RemoveAll(t.cacheDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func getAnchor(position string) (imaging.Anchor, string) {
	switch position {
	case "north", "top":
		return imaging.Top, "top"
	case "south", "bottom":
		return imaging.Bottom, "bottom"
	case "west", "left":
		return imaging.Left, "left"
	case "east", "right":
		return imaging.Right, "right"
	case "north-west", "top-left":
		return imaging.TopLeft, "top-left"
	case "north-east", "top-right":
		return imaging.TopRight, "top-right"
	case "south-west", "bottom-left":
		return imaging.BottomLeft, "bottom-left"
	case "south-east", "bottom-right":
		return imaging.BottomRight, "bottom-right"
	default:
		return imaging.Center, "center"
	}
}

func getQuality(configQuality, defaultQuality int) int {
	if configQuality > 0 && configQuality <= 100 {
		return configQuality
	}
	return defaultQuality
}
