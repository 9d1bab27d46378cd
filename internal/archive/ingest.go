// Package archive extracts uploaded zip archives entry by entry into a
// staging directory without buffering whole members in memory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/abdul-hamid-achik/frameset/internal/media"
)

var (
	ErrInvalidEntry  = errors.New("archive: entry path escapes destination")
	ErrEntryTooLarge = errors.New("archive: entry exceeds size limit")
	ErrCorrupt       = errors.New("archive: corrupt or truncated archive")
	ErrEntryCorrupt  = errors.New("archive: entry data is corrupt")
	ErrDuplicate     = errors.New("archive: duplicate entry name")
	ErrUnsupported   = errors.New("archive: unsupported compression method")
	ErrWriteFailed   = errors.New("archive: failed to write entry")
)

const (
	copyBufferSize = 32 * 1024
	partialPrefix  = ".partial-"
)

// Event describes one entry that was fully written to the staging directory.
type Event struct {
	RelPath string
	Path    string
	Size    int64
	Kind    media.Kind
}

// EntryError records an entry that was skipped without failing the archive.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

type Result struct {
	Entries   int
	Extracted int
	Skipped   []*EntryError
}

type Ingestor struct {
	classifier   *media.Classifier
	maxEntrySize int64
	buffers      sync.Pool
}

func NewIngestor(classifier *media.Classifier, maxEntrySize int64) *Ingestor {
	return &Ingestor{
		classifier:   classifier,
		maxEntrySize: maxEntrySize,
		buffers: sync.Pool{
			New: func() any {
				b := make([]byte, copyBufferSize)
				return &b
			},
		},
	}
}

// EventFunc is called once per extracted entry, in archive order. Returning an
// error stops ingestion.
type EventFunc func(ctx context.Context, ev Event) error

// Ingest extracts every file entry of the zip at archivePath into destDir.
// Unsafe, oversized or unreadable individual entries are recorded in
// Result.Skipped, including members whose data overruns their declared size
// or fails its checksum. A truncated archive or unreadable central directory
// returns an error wrapping ErrCorrupt; entries emitted before the failure
// stay on disk.
func (i *Ingestor) Ingest(ctx context.Context, archivePath, destDir string, classifier *media.Classifier, fn EventFunc) (*Result, error) {
	if classifier == nil {
		classifier = i.classifier
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	// NewReader still returns a usable reader alongside ErrInsecurePath;
	// unsafe names are rejected per entry by SafeRelPath.
	zr, err := zip.NewReader(f, info.Size())
	if zr == nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %v", ErrWriteFailed, err)
	}

	result := &Result{}
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if zf.FileInfo().IsDir() {
			continue
		}
		result.Entries++

		ev, err := i.extract(ctx, zf, destDir, classifier)
		if err != nil {
			if errors.Is(err, ErrCorrupt) || ctx.Err() != nil {
				return result, err
			}
			result.Skipped = append(result.Skipped, &EntryError{Name: zf.Name, Err: err})
			continue
		}
		if ev.Path != "" {
			result.Extracted++
		}

		if fn != nil {
			if err := fn(ctx, ev); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

func (i *Ingestor) extract(ctx context.Context, zf *zip.File, destDir string, classifier *media.Classifier) (Event, error) {
	rel, err := SafeRelPath(zf.Name)
	if err != nil {
		return Event{}, err
	}
	if zf.Mode()&os.ModeSymlink != 0 {
		return Event{}, fmt.Errorf("%w: symlink entry", ErrInvalidEntry)
	}
	if zf.UncompressedSize64 > uint64(i.maxEntrySize) {
		return Event{}, fmt.Errorf("%w: declared %d bytes", ErrEntryTooLarge, zf.UncompressedSize64)
	}
	if isMetadataEntry(rel) {
		return Event{RelPath: rel, Size: int64(zf.UncompressedSize64), Kind: media.KindUnsupported}, nil
	}

	rc, err := zf.Open()
	if err != nil {
		if errors.Is(err, zip.ErrAlgorithm) {
			return Event{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return Event{}, fmt.Errorf("%w: open %s: %v", ErrCorrupt, zf.Name, err)
	}
	defer rc.Close()

	target := filepath.Join(destDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), partialPrefix+"*")
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	tmpPath := tmp.Name()

	header, n, err := i.copyEntry(ctx, tmp, rc)
	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %v", ErrWriteFailed, closeErr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return Event{}, err
	}

	// A staged file with the same name may still be in use by a video
	// sampler, so the slot is claimed with a link rather than a rename.
	err = os.Link(tmpPath, target)
	_ = os.Remove(tmpPath)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Event{}, fmt.Errorf("%w: %s", ErrDuplicate, rel)
		}
		return Event{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	return Event{
		RelPath: rel,
		Path:    target,
		Size:    n,
		Kind:    classifier.Classify(rel, header),
	}, nil
}

// copyEntry streams r into w through a pooled buffer, capturing the leading
// bytes for classification and enforcing the entry size ceiling.
func (i *Ingestor) copyEntry(ctx context.Context, w io.Writer, r io.Reader) ([]byte, int64, error) {
	bufp := i.buffers.Get().(*[]byte)
	defer i.buffers.Put(bufp)
	buf := *bufp

	header := make([]byte, 0, media.HeaderSize)
	limited := io.LimitReader(r, i.maxEntrySize+1)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return nil, written, err
		}

		nr, rerr := limited.Read(buf)
		if nr > 0 {
			if written+int64(nr) > i.maxEntrySize {
				return nil, written, fmt.Errorf("%w: more than %d bytes", ErrEntryTooLarge, i.maxEntrySize)
			}
			if room := media.HeaderSize - len(header); room > 0 {
				header = append(header, buf[:min(nr, room)]...)
			}
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return nil, written, fmt.Errorf("%w: %v", ErrWriteFailed, werr)
			}
			if nw != nr {
				return nil, written, fmt.Errorf("%w: %v", ErrWriteFailed, io.ErrShortWrite)
			}
		}
		if rerr == io.EOF {
			return header, written, nil
		}
		if rerr != nil {
			return nil, written, entryReadError(rerr)
		}
	}
}

// entryReadError sorts a failed member read into a per-entry failure or one
// that ends the archive. The zip reader reports data running past the
// declared size as ErrFormat, which is how an oversized member that lied
// about its size shows up.
func entryReadError(err error) error {
	var flateErr flate.CorruptInputError
	switch {
	case errors.Is(err, zip.ErrFormat):
		return fmt.Errorf("%w: data exceeds its declared size", ErrEntryTooLarge)
	case errors.Is(err, zip.ErrChecksum), errors.As(err, &flateErr):
		return fmt.Errorf("%w: %v", ErrEntryCorrupt, err)
	default:
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
}

// SafeRelPath normalises an archive member name to a slash-separated path
// that stays inside the extraction root.
func SafeRelPath(name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty name", ErrInvalidEntry)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: NUL in name", ErrInvalidEntry)
	case strings.Contains(name, `\`):
		return "", fmt.Errorf("%w: backslash in %q", ErrInvalidEntry, name)
	case strings.HasPrefix(name, "/"):
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidEntry, name)
	case len(name) >= 2 && name[1] == ':':
		return "", fmt.Errorf("%w: drive path %q", ErrInvalidEntry, name)
	}

	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntry, name)
	}
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntry, name)
	}
	if strings.HasPrefix(path.Base(cleaned), partialPrefix) {
		return "", fmt.Errorf("%w: reserved name %q", ErrInvalidEntry, name)
	}
	return cleaned, nil
}

// isMetadataEntry matches resource-fork entries macOS adds to archives.
func isMetadataEntry(rel string) bool {
	return strings.HasPrefix(rel, "__MACOSX/") || strings.HasPrefix(path.Base(rel), "._")
}

// IsPartial reports whether name is an in-progress write.
func IsPartial(name string) bool {
	return strings.HasPrefix(filepath.Base(name), partialPrefix)
}
