package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/media"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
)

var _ processor.Processor = (*FrameSampler)(nil)

// FrameSampler writes JPEG frames taken at a fixed interval next to where the
// video sat in the archive.
type FrameSampler struct {
	decoder Decoder
}

func NewFrameSampler(decoder Decoder) *FrameSampler {
	return &FrameSampler{decoder: decoder}
}

func (s *FrameSampler) Name() string {
	return "frame_sampler"
}

func (s *FrameSampler) Kind() media.Kind {
	return media.KindVideo
}

// Timestamps returns the sample offsets 0, interval, 2*interval, ... that
// fall strictly before duration, capped at maxFrames. A video shorter than one
// interval yields a single sample at 0.
func Timestamps(duration float64, interval, maxFrames int) []float64 {
	if duration <= 0 || interval <= 0 || maxFrames <= 0 {
		return nil
	}
	out := make([]float64, 0, min(maxFrames, int(duration)/interval+1))
	for k := 0; k < maxFrames; k++ {
		t := float64(k * interval)
		if t >= duration {
			break
		}
		out = append(out, t)
	}
	return out
}

var frameNamePattern = regexp.MustCompile(`_frame_\d{4}\.jpg$`)

// FrameName derives the output name of frame index of the video at rel, e.g.
// "clips/a.mp4" -> "clips/a_mp4_frame_0003.jpg". The source extension is
// kept verbatim, case included, so a.mp4, a.MP4 and a.mov do not collide.
func FrameName(rel string, index int) string {
	dir, file := path.Split(rel)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if ext != "" {
		stem += "_" + strings.TrimPrefix(ext, ".")
	}
	return dir + fmt.Sprintf("%s_frame_%04d.jpg", stem, index)
}

// IsFrameName reports whether name looks like a file written by FrameSampler.
func IsFrameName(name string) bool {
	return frameNamePattern.MatchString(name)
}

// Process decodes the staged video and writes one JPEG per timestamp in
// increasing order. Frames that fail to decode or write are counted in
// Result.Failed; only an unopenable video is an error.
func (s *FrameSampler) Process(ctx context.Context, opts *processor.Options, in *processor.Input) (*processor.Result, error) {
	if opts == nil {
		opts = processor.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sess, err := s.decoder.Open(ctx, in.Path)
	if err != nil {
		if errors.Is(err, ErrInvalidVideo) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}
	defer func() { _ = sess.Close() }()

	meta := sess.Metadata()
	result := &processor.Result{
		Metadata: processor.ResultMetadata{
			Width:    meta.Width,
			Height:   meta.Height,
			Duration: meta.Duration,
			Format:   meta.Container,
		},
	}

	log := logger.FromContext(ctx).With("video", in.RelPath)
	for i, ts := range Timestamps(meta.Duration, opts.FrameInterval, opts.MaxFrames) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := FrameName(in.RelPath, i)
		if err := s.writeFrame(ctx, sess, ts, in.OutputDir, name); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			log.Warn("frame not written", "offset", ts, "error", err)
			result.Failed++
			continue
		}
		result.Files = append(result.Files, name)
	}

	return result, nil
}

func (s *FrameSampler) writeFrame(ctx context.Context, sess Session, ts float64, outputDir, name string) error {
	data, err := sess.Frame(ctx, ts)
	if err != nil {
		return err
	}
	dst, err := processor.PrepareDest(outputDir, name)
	if err != nil {
		return err
	}
	_, err = processor.WriteFile(dst, bytes.NewReader(data))
	return err
}
