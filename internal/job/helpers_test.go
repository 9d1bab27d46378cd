package job

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/abdul-hamid-achik/frameset/internal/config"
	"github.com/abdul-hamid-achik/frameset/internal/media"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
	imageproc "github.com/abdul-hamid-achik/frameset/internal/processor/image"
	"github.com/abdul-hamid-achik/frameset/internal/processor/video"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
)

type zipEntry struct {
	name string
	data []byte
}

func zipBytes(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create entry %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeVideo produces bytes that sniff as FLV and carry their duration for
// fakeDecoder. A non-positive duration makes the video undecodable.
func fakeVideo(duration float64) []byte {
	return []byte("FLV\x01\x05 duration=" + strconv.FormatFloat(duration, 'f', -1, 64))
}

var jpegFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0xFF, 0xD9}

type fakeDecoder struct {
	mu     sync.Mutex
	opened int
	closed int

	// When block is set, the first Frame call signals started and then
	// waits for block to close.
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (d *fakeDecoder) Open(ctx context.Context, path string) (video.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := string(data)
	i := strings.Index(s, "duration=")
	if i < 0 {
		return nil, video.ErrInvalidVideo
	}
	dur, err := strconv.ParseFloat(s[i+len("duration="):], 64)
	if err != nil || dur <= 0 {
		return nil, video.ErrInvalidVideo
	}

	d.mu.Lock()
	d.opened++
	d.mu.Unlock()
	return &fakeSession{dec: d, meta: &video.VideoMetadata{Duration: dur, Width: 4, Height: 4, Container: "flv"}}, nil
}

type fakeSession struct {
	dec  *fakeDecoder
	meta *video.VideoMetadata
}

func (s *fakeSession) Metadata() *video.VideoMetadata { return s.meta }

func (s *fakeSession) Frame(ctx context.Context, offset float64) ([]byte, error) {
	if s.dec.block != nil {
		s.dec.once.Do(func() { close(s.dec.started) })
		select {
		case <-s.dec.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return jpegFrame, nil
}

func (s *fakeSession) Close() error {
	s.dec.mu.Lock()
	s.dec.closed++
	s.dec.mu.Unlock()
	return nil
}

type harness struct {
	mediaRoot string
	tracker   *Tracker
	archives  *storage.ArchiveStore
	pipeline  *Pipeline
	decoder   *fakeDecoder
}

func newHarness(t *testing.T, opts ...TrackerOption) *harness {
	t.Helper()
	root := t.TempDir()
	mediaRoot := filepath.Join(root, "static", "images")
	if err := os.MkdirAll(mediaRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	local, err := storage.NewLocalStorage(filepath.Join(root, "uploads"))
	if err != nil {
		t.Fatal(err)
	}

	dec := &fakeDecoder{}
	reg := processor.NewRegistry()
	reg.Register("image_store", imageproc.NewStoreProcessor())
	reg.Register("frame_sampler", video.NewFrameSampler(dec))

	tracker := NewTracker(opts...)
	archives := storage.NewArchiveStore(local)
	classifier := media.NewClassifier(config.DefaultImageExtensions, config.DefaultVideoExtensions)

	return &harness{
		mediaRoot: mediaRoot,
		tracker:   tracker,
		archives:  archives,
		decoder:   dec,
		pipeline: NewPipeline(PipelineConfig{
			MediaRoot:        mediaRoot,
			StagingRoot:      filepath.Join(root, "staging"),
			MaxEntrySize:     1 << 20,
			VideoConcurrency: 2,
		}, tracker, archives, classifier, reg),
	}
}

// submit retains data as an archive and registers a pending job for it.
func (h *harness) submit(t *testing.T, name string, data []byte, params Params) *Job {
	t.Helper()
	key, err := h.archives.Save(context.Background(), name, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return h.tracker.Create(context.Background(), name, key, params, h.pipeline.OutputDir)
}

// files lists regular files under dir relative to it, slash-separated.
func files(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(dir, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk %s: %v", dir, err)
	}
	sort.Strings(out)
	return out
}

type memoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snaps: make(map[string]Snapshot)}
}

func (m *memoryStore) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	m.saves++
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memoryStore) List(ctx context.Context, limit int) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return ErrNotFound
	}
	delete(m.snaps, id)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
