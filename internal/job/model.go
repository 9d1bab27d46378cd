// Package job tracks archive uploads from acceptance to completion and runs
// the extraction pipeline for each of them.
package job

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/processor"
)

var (
	ErrNotFound      = errors.New("job: not found")
	ErrInvalidParams = errors.New("job: invalid parameters")
	ErrQueueFull     = errors.New("job: queue is full")
	ErrPoolStopped   = errors.New("job: pool stopped")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Counters only ever grow.
type Counters struct {
	TotalEntries    int64 `json:"total_entries"`
	ImagesExtracted int64 `json:"images_extracted"`
	VideosProcessed int64 `json:"videos_processed"`
	FramesExtracted int64 `json:"frames_extracted"`
	Errors          int64 `json:"errors"`
}

func (c *Counters) add(d Counters) {
	c.TotalEntries += max(d.TotalEntries, 0)
	c.ImagesExtracted += max(d.ImagesExtracted, 0)
	c.VideosProcessed += max(d.VideosProcessed, 0)
	c.FramesExtracted += max(d.FramesExtracted, 0)
	c.Errors += max(d.Errors, 0)
}

// Params are the intake options of one upload. ModelName and SamplingFactor
// are stored and echoed back; nothing interprets them.
type Params struct {
	ModelName       string   `json:"model_name,omitempty"`
	SamplingFactor  float64  `json:"sampling_factor"`
	FrameInterval   int      `json:"frame_interval"`
	MaxFrames       int      `json:"max_frames_per_video"`
	ImageExtensions []string `json:"image_extensions,omitempty"`
	VideoExtensions []string `json:"video_extensions,omitempty"`
}

func DefaultParams() Params {
	return Params{
		FrameInterval: processor.DefaultFrameInterval,
		MaxFrames:     processor.DefaultFrames,
	}
}

func (p *Params) Validate() error {
	if p.SamplingFactor < 0 || p.SamplingFactor > 1 {
		return fmt.Errorf("%w: sampling_factor must be between 0 and 1", ErrInvalidParams)
	}
	if err := p.Options().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, strings.TrimPrefix(err.Error(), processor.ErrInvalidConfig.Error()+": "))
	}
	return nil
}

// AllowedExtensions is the upload's extension allow-list across both kinds,
// or nil when the upload did not restrict extensions.
func (p *Params) AllowedExtensions() []string {
	if len(p.ImageExtensions) == 0 && len(p.VideoExtensions) == 0 {
		return nil
	}
	return slices.Concat(p.ImageExtensions, p.VideoExtensions)
}

func (p *Params) Options() *processor.Options {
	return &processor.Options{
		FrameInterval: p.FrameInterval,
		MaxFrames:     p.MaxFrames,
	}
}

// Snapshot is a point-in-time copy of a job, safe to hand out to readers.
type Snapshot struct {
	ID              string     `json:"id"`
	ArchiveName     string     `json:"archive_name"`
	ArchiveKey      string     `json:"archive_key"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Counters        Counters   `json:"counters"`
	OutputDirectory string     `json:"output_directory"`
	ErrorCode       string     `json:"error_code,omitempty"`
	Error           string     `json:"error,omitempty"`
	Params          Params     `json:"params"`
	Files           []string   `json:"files,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	if s.Files != nil {
		s.Files = append([]string(nil), s.Files...)
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		s.FinishedAt = &t
	}
	s.Params.ImageExtensions = append([]string(nil), s.Params.ImageExtensions...)
	s.Params.VideoExtensions = append([]string(nil), s.Params.VideoExtensions...)
	return s
}
