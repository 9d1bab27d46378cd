// Package media decides whether an extracted file is an image, a video or
// something the pipeline ignores.
package media

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindImage       Kind = "image"
	KindVideo       Kind = "video"
	KindUnsupported Kind = "unsupported"
)

// HeaderSize is the number of leading bytes callers should pass to Classify.
const HeaderSize = 512

// Classifier maps a file name and its leading bytes to a Kind. The extension
// must be on an allow-list for the file to be considered at all; the header
// bytes then decide the kind, so a video renamed to .jpg is still a video.
type Classifier struct {
	images map[string]struct{}
	videos map[string]struct{}
}

func NewClassifier(imageExts, videoExts []string) *Classifier {
	return &Classifier{
		images: extSet(imageExts),
		videos: extSet(videoExts),
	}
}

func extSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Narrow returns a classifier limited to the extensions in allowed that c
// also accepts. An empty list leaves c unchanged; otherwise a kind with no
// listed extension accepts nothing, so "png" alone turns video sampling off.
func (c *Classifier) Narrow(allowed []string) *Classifier {
	if len(allowed) == 0 {
		return c
	}
	set := extSet(allowed)
	return &Classifier{
		images: intersect(c.images, set),
		videos: intersect(c.videos, set),
	}
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range b {
		if _, ok := a[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// ExtensionKind reports the kind implied by the file extension alone.
func (c *Classifier) ExtensionKind(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := c.images[ext]; ok {
		return KindImage
	}
	if _, ok := c.videos[ext]; ok {
		return KindVideo
	}
	return KindUnsupported
}

func (c *Classifier) Classify(name string, header []byte) Kind {
	byExt := c.ExtensionKind(name)
	if byExt == KindUnsupported {
		return KindUnsupported
	}

	if sniffed, known := sniff(header); known {
		return sniffed
	}

	// Unknown signature: trust the extension only when the content is opaque
	// binary rather than something recognisably non-media.
	if len(header) == 0 {
		return KindUnsupported
	}
	ct := http.DetectContentType(header)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	case ct == "application/octet-stream":
		return byExt
	default:
		return KindUnsupported
	}
}

var ftypImageBrands = []string{"avif", "avis", "heic", "heix", "mif1", "msf1"}

// Sniff identifies media containers from their magic bytes.
func Sniff(h []byte) Kind {
	k, _ := sniff(h)
	return k
}

// sniff reports known=true when the signature was recognised, including
// containers that are recognised but not handled (HEIF stills, WAVE audio).
func sniff(h []byte) (kind Kind, known bool) {
	switch {
	case bytes.HasPrefix(h, []byte{0xFF, 0xD8, 0xFF}):
		return KindImage, true
	case bytes.HasPrefix(h, []byte("\x89PNG\r\n\x1a\n")):
		return KindImage, true
	case bytes.HasPrefix(h, []byte("GIF87a")), bytes.HasPrefix(h, []byte("GIF89a")):
		return KindImage, true
	case len(h) >= 14 && bytes.HasPrefix(h, []byte("BM")) && bytes.Equal(h[6:10], []byte{0, 0, 0, 0}):
		return KindImage, true
	case bytes.HasPrefix(h, []byte("II*\x00")), bytes.HasPrefix(h, []byte("MM\x00*")):
		return KindImage, true
	case len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")):
		switch string(h[8:12]) {
		case "WEBP":
			return KindImage, true
		case "AVI ":
			return KindVideo, true
		}
		return KindUnsupported, true
	case len(h) >= 12 && bytes.Equal(h[4:8], []byte("ftyp")):
		brand := string(h[8:12])
		for _, b := range ftypImageBrands {
			if brand == b {
				return KindUnsupported, true
			}
		}
		return KindVideo, true
	case len(h) >= 8 && (bytes.Equal(h[4:8], []byte("moov")) || bytes.Equal(h[4:8], []byte("mdat")) || bytes.Equal(h[4:8], []byte("wide"))):
		return KindVideo, true
	case bytes.HasPrefix(h, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return KindVideo, true
	case bytes.HasPrefix(h, []byte("FLV")):
		return KindVideo, true
	case bytes.HasPrefix(h, []byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11}):
		return KindVideo, true
	case bytes.HasPrefix(h, []byte{0x00, 0x00, 0x01, 0xBA}):
		return KindVideo, true
	}
	return KindUnsupported, false
}
