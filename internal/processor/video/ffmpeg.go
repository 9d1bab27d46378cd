package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FFmpegDecoder implements Decoder by shelling out to ffprobe and ffmpeg.
type FFmpegDecoder struct {
	config *VideoConfig
}

var _ Decoder = (*FFmpegDecoder)(nil)

// NewFFmpegDecoder creates a decoder after checking both binaries exist.
func NewFFmpegDecoder(cfg *VideoConfig) (*FFmpegDecoder, error) {
	if cfg == nil {
		cfg = DefaultVideoConfig()
	}

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFprobeNotFound, err)
	}

	return &FFmpegDecoder{config: cfg}, nil
}

func (d *FFmpegDecoder) Open(ctx context.Context, path string) (Session, error) {
	metadata, err := d.getMetadataFromFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}
	if metadata.Width == 0 && metadata.Height == 0 && metadata.VideoCodec == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVideo, ErrNoVideoStream)
	}
	if metadata.Duration <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVideo, ErrZeroDuration)
	}

	tempDir, err := d.createTempDir("frames")
	if err != nil {
		return nil, err
	}

	return &ffmpegSession{
		config:   d.config,
		path:     path,
		metadata: metadata,
		tempDir:  tempDir,
	}, nil
}

type ffmpegSession struct {
	config   *VideoConfig
	path     string
	metadata *VideoMetadata
	tempDir  string

	mu     sync.Mutex
	closed bool
	seq    int
}

func (s *ffmpegSession) Metadata() *VideoMetadata {
	return s.metadata
}

func (s *ffmpegSession) Frame(ctx context.Context, offset float64) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.seq++
	outputPath := filepath.Join(s.tempDir, fmt.Sprintf("frame_%06d.jpg", s.seq))
	s.mu.Unlock()
	defer func() { _ = os.Remove(outputPath) }()

	// -ss before -i seeks on keyframes and decodes forward to the exact time.
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(s.config.JPEGQuality),
		"-f", "image2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, s.config.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: at %.3fs: %v, output: %s", ErrFrameFailed, offset, err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: at %.3fs: no frame written: %v", ErrFrameFailed, offset, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: at %.3fs: empty frame", ErrFrameFailed, offset)
	}
	return data, nil
}

func (s *ffmpegSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.tempDir)
}

func (d *FFmpegDecoder) createTempDir(prefix string) (string, error) {
	baseDir := d.config.TempDir
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create base temp dir: %w", err)
	}

	tempDir, err := os.MkdirTemp(baseDir, prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	return tempDir, nil
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
		Name     string `json:"format_name"`
	} `json:"format"`
}

func (d *FFmpegDecoder) getMetadataFromFile(ctx context.Context, path string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, d.config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*VideoMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	metadata := &VideoMetadata{}

	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			metadata.Duration = d
		}
	}

	if probe.Format.Size != "" {
		if s, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			metadata.FileSize = s
		}
	}

	if probe.Format.BitRate != "" {
		if b, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
			metadata.Bitrate = b
		}
	}

	metadata.Container = strings.Split(probe.Format.Name, ",")[0]

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if metadata.VideoCodec != "" {
				continue
			}
			metadata.VideoCodec = stream.CodecName
			metadata.Width = stream.Width
			metadata.Height = stream.Height
			metadata.FrameRate = parseFrameRate(stream.RFrameRate)
			// Some containers only report duration on the stream.
			if metadata.Duration <= 0 && stream.Duration != "" {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					metadata.Duration = d
				}
			}
		case "audio":
			metadata.HasAudio = true
		}
	}

	return metadata, nil
}

// parseFrameRate parses ffprobe rates such as "30/1" or "30000/1001".
func parseFrameRate(rate string) float64 {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den <= 0 {
		return 0
	}
	return num / den
}
