package media

import (
	"testing"
)

var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	mp4Header  = []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0}
	aviHeader  = []byte("RIFF\x00\x00\x00\x00AVI LIST")
	webpHeader = []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	mkvHeader  = []byte{0x1A, 0x45, 0xDF, 0xA3, 0x93, 0x42, 0x82, 0x88}
	bmpHeader  = []byte{'B', 'M', 0x36, 0x00, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x00, 0x36, 0x00, 0x00, 0x00}
	heicHeader = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c', 0, 0, 0, 0}
)

func defaultClassifier() *Classifier {
	return NewClassifier(
		[]string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".gif"},
		[]string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv"},
	)
}

func TestClassify(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		name   string
		file   string
		header []byte
		want   Kind
	}{
		{"jpeg", "a.jpg", jpegHeader, KindImage},
		{"png upper ext", "B.PNG", pngHeader, KindImage},
		{"bmp", "c.bmp", bmpHeader, KindImage},
		{"mp4", "clip.mp4", mp4Header, KindVideo},
		{"avi", "clip.avi", aviHeader, KindVideo},
		{"mkv", "clip.mkv", mkvHeader, KindVideo},
		{"video renamed as image", "fake.jpg", mp4Header, KindVideo},
		{"image renamed as video", "fake.mp4", pngHeader, KindImage},
		{"extension not allowed", "notes.txt", pngHeader, KindUnsupported},
		{"webp not on allow-list", "x.webp", webpHeader, KindUnsupported},
		{"text content with image ext", "readme.jpg", []byte("hello world, not an image"), KindUnsupported},
		{"heic brand in mp4 name", "photo.mov", heicHeader, KindUnsupported},
		{"empty file", "empty.png", nil, KindUnsupported},
		{"opaque binary trusts extension", "clip.wmv", []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x00, 0x99}, KindVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.file, tt.header); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.file, got, tt.want)
			}
		})
	}
}

func TestNarrow(t *testing.T) {
	c := defaultClassifier().Narrow([]string{"png"})

	if got := c.ExtensionKind("a.jpg"); got != KindUnsupported {
		t.Errorf("jpg after narrowing = %s, want unsupported", got)
	}
	if got := c.ExtensionKind("a.png"); got != KindImage {
		t.Errorf("png after narrowing = %s, want image", got)
	}
	if got := c.ExtensionKind("a.mp4"); got != KindUnsupported {
		t.Errorf("mp4 with an image-only list = %s, want unsupported", got)
	}

	c = defaultClassifier().Narrow([]string{".mp4", ".PNG"})
	if c.ExtensionKind("a.mp4") != KindVideo || c.ExtensionKind("a.png") != KindImage {
		t.Error("listed extensions of both kinds should stay accepted")
	}
	if got := c.ExtensionKind("a.mov"); got != KindUnsupported {
		t.Errorf("mov = %s, want unsupported", got)
	}

	if got := defaultClassifier().Narrow(nil).ExtensionKind("a.mp4"); got != KindVideo {
		t.Errorf("no allow-list should leave videos on, got %s", got)
	}

	// Narrowing cannot widen the allow-list.
	c = defaultClassifier().Narrow([]string{".webp"})
	if got := c.ExtensionKind("a.webp"); got != KindUnsupported {
		t.Errorf("webp = %s, want unsupported", got)
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Kind
	}{
		{"gif", []byte("GIF89a\x01\x00"), KindImage},
		{"tiff little endian", []byte("II*\x00\x08\x00"), KindImage},
		{"webp", webpHeader, KindImage},
		{"flv", []byte("FLV\x01\x05"), KindVideo},
		{"asf", []byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11, 0xA6}, KindVideo},
		{"riff wave", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), KindUnsupported},
		{"bm text", []byte("BMW service report 2024"), KindUnsupported},
		{"short", []byte{0xFF}, KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.header); got != tt.want {
				t.Errorf("Sniff() = %s, want %s", got, tt.want)
			}
		})
	}
}
