package cli

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/frameset/internal/cli/output"
)

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <image-path>",
	Short: "Download a square JPEG preview of a catalog image",
	Long: `Download a preview rendered by the server.

The image path is the catalog path shown by "framesctl images", or the
/static/images/ URL from the list_images endpoint.

Examples:
  framesctl thumbnail 7f9c.../cat.png                  # Writes cat_thumb.jpg
  framesctl thumbnail 7f9c.../cat.png -s 128 -o c.jpg  # Custom size and name
  framesctl thumbnail 7f9c.../cat.png -o - > c.jpg     # To stdout`,
	Args: cobra.ExactArgs(1),
	RunE: runThumbnail,
}

var (
	thumbnailSize   int
	thumbnailOutput string
)

func init() {
	thumbnailCmd.Flags().IntVarP(&thumbnailSize, "size", "s", 0, "Edge length in pixels (16-1024, server default when unset)")
	thumbnailCmd.Flags().StringVarP(&thumbnailOutput, "output", "o", "", `Output file, "-" for stdout`)
}

func thumbnailName(imagePath string) string {
	base := path.Base(imagePath)
	return strings.TrimSuffix(base, path.Ext(base)) + "_thumb.jpg"
}

func runThumbnail(cmd *cobra.Command, args []string) error {
	if thumbnailSize != 0 && (thumbnailSize < 16 || thumbnailSize > 1024) {
		return fmt.Errorf("size must be between 16 and 1024")
	}

	if thumbnailOutput == "-" {
		_, err := apiClient.Thumbnail(GetContext(), args[0], thumbnailSize, cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("failed to download thumbnail: %w", err)
		}
		return nil
	}

	dest := thumbnailOutput
	if dest == "" {
		dest = thumbnailName(args[0])
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := apiClient.Thumbnail(GetContext(), args[0], thumbnailSize, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("failed to download thumbnail: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]any{"image": args[0], "output": dest, "bytes": n})
	}
	printer.Success("Saved %s (%s)", dest, output.Size(n))
	return nil
}
