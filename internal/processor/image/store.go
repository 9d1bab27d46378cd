package image

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/abdul-hamid-achik/frameset/internal/media"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
)

var _ processor.Processor = (*StoreProcessor)(nil)

// StoreProcessor places original images in the job's output directory
// byte-for-byte, after checking that the header decodes.
type StoreProcessor struct{}

func NewStoreProcessor() *StoreProcessor {
	return &StoreProcessor{}
}

func (p *StoreProcessor) Name() string {
	return "image_store"
}

func (p *StoreProcessor) Kind() media.Kind {
	return media.KindImage
}

type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

func (p *StoreProcessor) Process(ctx context.Context, opts *processor.Options, in *processor.Input) (*processor.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := ReadMetadata(in.Path)
	if err != nil {
		return nil, err
	}

	dst, err := processor.PrepareDest(in.OutputDir, in.RelPath)
	if err != nil {
		return &processor.Result{Failed: 1}, err
	}
	if err := processor.MoveFile(in.Path, dst); err != nil {
		return &processor.Result{Failed: 1}, err
	}

	return &processor.Result{
		Files: []string{in.RelPath},
		Metadata: processor.ResultMetadata{
			Width:  meta.Width,
			Height: meta.Height,
			Format: meta.Format,
		},
	}, nil
}

// ReadMetadata decodes only the image header at path.
func ReadMetadata(path string) (*ImageMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrProcessingFailed, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", processor.ErrCorruptedFile)
	}

	return &ImageMetadata{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}, nil
}
