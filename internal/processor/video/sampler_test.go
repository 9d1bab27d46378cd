package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/abdul-hamid-achik/frameset/internal/processor"
)

type fakeDecoder struct {
	metadata *VideoMetadata
	openErr  error
	frameErr map[float64]error
	onFrame  func(offset float64)

	mu       sync.Mutex
	sessions []*fakeSession
}

func (d *fakeDecoder) Open(ctx context.Context, path string) (Session, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeSession{decoder: d}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDecoder) allClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if s.closes != 1 {
			return false
		}
	}
	return true
}

type fakeSession struct {
	decoder *fakeDecoder
	offsets []float64
	closes  int
}

func (s *fakeSession) Metadata() *VideoMetadata { return s.decoder.metadata }

func (s *fakeSession) Frame(ctx context.Context, offset float64) ([]byte, error) {
	s.offsets = append(s.offsets, offset)
	if s.decoder.onFrame != nil {
		s.decoder.onFrame(offset)
	}
	if err := s.decoder.frameErr[offset]; err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("jpeg@%.1f", offset)), nil
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

func TestTimestamps(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		interval  int
		maxFrames int
		want      int
	}{
		{"ten seconds every second", 10, 1, 100, 10},
		{"fractional duration", 3.5, 1, 100, 4},
		{"shorter than one interval", 0.5, 1, 100, 1},
		{"shorter than wide interval", 7, 10, 100, 1},
		{"interval three", 10, 3, 100, 4},
		{"exact multiple", 10, 5, 100, 2},
		{"capped by max frames", 1000, 1, 100, 100},
		{"single frame cap", 60, 1, 1, 1},
		{"max interval and frames", 6000, 10, 500, 500},
		{"zero duration", 0, 1, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Timestamps(tt.duration, tt.interval, tt.maxFrames)
			if len(got) != tt.want {
				t.Fatalf("len(Timestamps()) = %d, want %d (%v)", len(got), tt.want, got)
			}
			for i, ts := range got {
				if ts != float64(i*tt.interval) {
					t.Errorf("ts[%d] = %v, want %v", i, ts, float64(i*tt.interval))
				}
				if ts >= tt.duration {
					t.Errorf("ts[%d] = %v is not before duration %v", i, ts, tt.duration)
				}
			}
		})
	}
}

func TestFrameName(t *testing.T) {
	tests := []struct {
		rel   string
		index int
		want  string
	}{
		{"clip.mp4", 0, "clip_mp4_frame_0000.jpg"},
		{"clips/day1/clip.MOV", 12, "clips/day1/clip_MOV_frame_0012.jpg"},
		{"clip.Mp4", 1, "clip_Mp4_frame_0001.jpg"},
		{"noext", 3, "noext_frame_0003.jpg"},
		{"a.b.mkv", 499, "a.b_mkv_frame_0499.jpg"},
	}
	for _, tt := range tests {
		if got := FrameName(tt.rel, tt.index); got != tt.want {
			t.Errorf("FrameName(%q, %d) = %q, want %q", tt.rel, tt.index, got, tt.want)
		}
		if !IsFrameName(tt.want) {
			t.Errorf("IsFrameName(%q) = false", tt.want)
		}
	}
	if FrameName("clip.FLV", 0) == FrameName("clip.flv", 0) {
		t.Error("videos differing only in extension case share frame names")
	}
	if IsFrameName("holiday.jpg") {
		t.Error("IsFrameName should not match plain images")
	}
}

func TestFrameSampler_Process(t *testing.T) {
	out := t.TempDir()
	dec := &fakeDecoder{metadata: &VideoMetadata{Duration: 4.2, Width: 320, Height: 240, Container: "mov"}}
	s := NewFrameSampler(dec)

	res, err := s.Process(context.Background(), &processor.Options{FrameInterval: 1, MaxFrames: 100}, &processor.Input{
		Path:      "/staging/clips/a.mp4",
		RelPath:   "clips/a.mp4",
		OutputDir: out,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []string{
		"clips/a_mp4_frame_0000.jpg",
		"clips/a_mp4_frame_0001.jpg",
		"clips/a_mp4_frame_0002.jpg",
		"clips/a_mp4_frame_0003.jpg",
		"clips/a_mp4_frame_0004.jpg",
	}
	if !reflect.DeepEqual(res.Files, want) {
		t.Errorf("Files = %v, want %v", res.Files, want)
	}
	if res.Failed != 0 {
		t.Errorf("Failed = %d, want 0", res.Failed)
	}
	if res.Metadata.Duration != 4.2 || res.Metadata.Width != 320 {
		t.Errorf("Metadata = %+v", res.Metadata)
	}

	got, err := os.ReadFile(filepath.Join(out, "clips", "a_mp4_frame_0003.jpg"))
	if err != nil || string(got) != "jpeg@3.0" {
		t.Errorf("frame 3 = %q, %v", got, err)
	}

	offsets := dec.sessions[0].offsets
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Errorf("offsets not strictly increasing: %v", offsets)
		}
	}
	if !dec.allClosed() {
		t.Error("session was not closed exactly once")
	}
}

func TestFrameSampler_OpenFails(t *testing.T) {
	dec := &fakeDecoder{openErr: errors.New("moov atom not found")}

	_, err := NewFrameSampler(dec).Process(context.Background(), nil, &processor.Input{
		Path: "x.mp4", RelPath: "x.mp4", OutputDir: t.TempDir(),
	})
	if !errors.Is(err, ErrInvalidVideo) {
		t.Fatalf("Process() error = %v, want ErrInvalidVideo", err)
	}
}

func TestFrameSampler_FrameErrorsAreCounted(t *testing.T) {
	dec := &fakeDecoder{
		metadata: &VideoMetadata{Duration: 3},
		frameErr: map[float64]error{1: ErrFrameFailed},
	}

	res, err := NewFrameSampler(dec).Process(context.Background(), processor.DefaultOptions(), &processor.Input{
		Path: "x.mp4", RelPath: "x.mp4", OutputDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Failed != 1 || len(res.Files) != 2 {
		t.Errorf("Failed = %d, Files = %v; want 1 failure and 2 files", res.Failed, res.Files)
	}
	if !dec.allClosed() {
		t.Error("session was not closed after frame errors")
	}
}

func TestFrameSampler_OutputRemovedMidRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}

	dec := &fakeDecoder{metadata: &VideoMetadata{Duration: 5}}
	dec.onFrame = func(offset float64) {
		if offset == 2 {
			_ = os.RemoveAll(out)
		}
	}

	res, err := NewFrameSampler(dec).Process(context.Background(), processor.DefaultOptions(), &processor.Input{
		Path: "x.mp4", RelPath: "x.mp4", OutputDir: out,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(res.Files) != 2 || res.Failed != 3 {
		t.Errorf("Files = %v, Failed = %d; want 2 written and 3 failed", res.Files, res.Failed)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("removed output directory was recreated")
	}
	if !dec.allClosed() {
		t.Error("session was not closed")
	}
}

func TestFrameSampler_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dec := &fakeDecoder{metadata: &VideoMetadata{Duration: 50}}
	dec.onFrame = func(offset float64) {
		if offset == 1 {
			cancel()
		}
	}

	_, err := NewFrameSampler(dec).Process(ctx, processor.DefaultOptions(), &processor.Input{
		Path: "x.mp4", RelPath: "x.mp4", OutputDir: t.TempDir(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if !dec.allClosed() {
		t.Error("session was not closed after cancellation")
	}
}

func TestFrameSampler_InvalidOptions(t *testing.T) {
	dec := &fakeDecoder{metadata: &VideoMetadata{Duration: 5}}

	_, err := NewFrameSampler(dec).Process(context.Background(), &processor.Options{FrameInterval: 0, MaxFrames: 10}, &processor.Input{
		Path: "x.mp4", RelPath: "x.mp4", OutputDir: t.TempDir(),
	})
	if !errors.Is(err, processor.ErrInvalidConfig) {
		t.Fatalf("Process() error = %v, want ErrInvalidConfig", err)
	}
	if len(dec.sessions) != 0 {
		t.Error("decoder should not be opened with invalid options")
	}
}

func TestFrameSampler_ExistingFrameIsKept(t *testing.T) {
	out := t.TempDir()
	taken := filepath.Join(out, "x_mp4_frame_0001.jpg")
	if err := os.WriteFile(taken, []byte("user photo"), 0o644); err != nil {
		t.Fatal(err)
	}

	dec := &fakeDecoder{metadata: &VideoMetadata{Duration: 3}}
	res, err := NewFrameSampler(dec).Process(context.Background(), processor.DefaultOptions(), &processor.Input{
		Path: "x.mp4", RelPath: "x.mp4", OutputDir: out,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Failed != 1 || len(res.Files) != 2 {
		t.Errorf("Failed = %d, Files = %v; want the clashing frame counted as failed", res.Failed, res.Files)
	}
	if got, _ := os.ReadFile(taken); string(got) != "user photo" {
		t.Errorf("existing file overwritten: %q", got)
	}
}
