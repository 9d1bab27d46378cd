package video

import (
	"context"
	"errors"
)

var (
	ErrFFmpegNotFound  = errors.New("video: ffmpeg not found in PATH")
	ErrFFprobeNotFound = errors.New("video: ffprobe not found in PATH")
	ErrInvalidVideo    = errors.New("video: invalid or corrupted video file")
	ErrNoVideoStream   = errors.New("video: no video stream")
	ErrZeroDuration    = errors.New("video: zero or unknown duration")
	ErrFrameFailed     = errors.New("video: frame extraction failed")
	ErrSessionClosed   = errors.New("video: session closed")
)

// VideoMetadata contains detailed video information
type VideoMetadata struct {
	Duration   float64 `json:"duration"`    // Duration in seconds
	Width      int     `json:"width"`       // Video width
	Height     int     `json:"height"`      // Video height
	Bitrate    int64   `json:"bitrate"`     // Total bitrate in bits/s
	VideoCodec string  `json:"video_codec"` // e.g., h264, vp9, hevc
	FrameRate  float64 `json:"frame_rate"`  // Frames per second
	FileSize   int64   `json:"file_size"`   // File size in bytes
	Container  string  `json:"container"`   // e.g., mp4, webm, mkv
	HasAudio   bool    `json:"has_audio"`   // Whether video has audio track
}

// Decoder opens videos for frame-accurate seeking.
type Decoder interface {
	Open(ctx context.Context, path string) (Session, error)
}

// Session is an opened video. Callers must Close it on every path.
type Session interface {
	Metadata() *VideoMetadata
	// Frame returns the frame at offset seconds encoded as JPEG.
	Frame(ctx context.Context, offset float64) ([]byte, error)
	Close() error
}

type VideoConfig struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
	// JPEGQuality is ffmpeg's -q:v scale, 2 (best) to 31.
	JPEGQuality int
}

func DefaultVideoConfig() *VideoConfig {
	return &VideoConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		JPEGQuality: 2,
	}
}
