package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/frameset/internal/media"
)

var (
	ErrUnsupportedType  = errors.New("processor: unsupported media kind")
	ErrProcessingFailed = errors.New("processor: processing failed")
	ErrInvalidConfig    = errors.New("processor: invalid configuration")
	ErrCorruptedFile    = errors.New("processor: file appears corrupted")
	ErrWriteFailed      = errors.New("processor: failed to write output")
)

const (
	MinFrameInterval     = 1
	MaxFrameInterval     = 10
	DefaultFrameInterval = 1

	MinFrames     = 1
	MaxFrames     = 500
	DefaultFrames = 100
)

// Processor turns one staged file into catalog files under the job's output
// directory.
type Processor interface {
	Process(ctx context.Context, opts *Options, in *Input) (*Result, error)
	Kind() media.Kind
	Name() string
}

type Input struct {
	// Path is the staged file on local disk.
	Path string
	// RelPath is the slash-separated path of the file inside the archive.
	RelPath string
	// OutputDir is the job's directory under the media root.
	OutputDir string
}

type Options struct {
	FrameInterval int
	MaxFrames     int
}

func DefaultOptions() *Options {
	return &Options{
		FrameInterval: DefaultFrameInterval,
		MaxFrames:     DefaultFrames,
	}
}

func (o *Options) Validate() error {
	if o.FrameInterval < MinFrameInterval || o.FrameInterval > MaxFrameInterval {
		return fmt.Errorf("%w: frame_interval must be between %d and %d", ErrInvalidConfig, MinFrameInterval, MaxFrameInterval)
	}
	if o.MaxFrames < MinFrames || o.MaxFrames > MaxFrames {
		return fmt.Errorf("%w: max_frames_per_video must be between %d and %d", ErrInvalidConfig, MinFrames, MaxFrames)
	}
	return nil
}

type Result struct {
	// Files are the output paths written, relative to the output directory.
	Files []string
	// Failed counts outputs that could not be written.
	Failed   int
	Metadata ResultMetadata
}

type ResultMetadata struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Format   string  `json:"format,omitempty"`
}
