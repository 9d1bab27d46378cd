package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/frameset/internal/cli/output"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List extracted images and frames",
	Long: `List files in the image catalog.

Examples:
  framesctl images                             # Everything
  framesctl images --job 7f9c...               # One job's output
  framesctl images --kind extracted_frame      # Only video frames`,
	RunE: runImages,
}

var (
	imagesJob  string
	imagesKind string
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List per-job output folders",
	RunE:  runFolders,
}

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List retained archives",
	RunE:  runUploads,
}

var statsCmd = &cobra.Command{
	Use:   "stats <job-id>",
	Short: "Summarize a job's extracted files",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	imagesCmd.Flags().StringVar(&imagesJob, "job", "", "Only files from this job")
	imagesCmd.Flags().StringVar(&imagesKind, "kind", "", "original_image or extracted_frame")
}

func runImages(cmd *cobra.Command, args []string) error {
	if imagesKind != "" && imagesKind != "original_image" && imagesKind != "extracted_frame" {
		return fmt.Errorf("invalid kind %q: use original_image or extracted_frame", imagesKind)
	}

	resp, err := apiClient.Catalog(GetContext(), imagesJob, imagesKind)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	if jsonOutput {
		return printer.JSON(resp)
	}

	if len(resp.Entries) == 0 {
		printer.Info("No images found")
		return nil
	}

	table := output.NewTableWriter(printer.Out(), []string{"Path", "Kind", "Size", "Created"}, quietMode)
	for _, e := range resp.Entries {
		table.Append([]string{e.Path, e.Kind, output.Size(e.Size), output.Ago(e.CreatedAt)})
	}
	table.Render()
	printer.Info("%d files", resp.Total)
	return nil
}

func runFolders(cmd *cobra.Command, args []string) error {
	resp, err := apiClient.ListFolders(GetContext())
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}

	if jsonOutput {
		return printer.JSON(resp)
	}

	if len(resp.Folders) == 0 {
		printer.Info("No folders found")
		return nil
	}

	table := output.NewTableWriter(printer.Out(), []string{"Folder", "Files", "Size"}, quietMode)
	for _, f := range resp.Folders {
		table.Append([]string{f.ID, strconv.Itoa(f.FileCount), output.Size(f.TotalSize)})
	}
	table.Render()
	return nil
}

func runUploads(cmd *cobra.Command, args []string) error {
	resp, err := apiClient.ListUploads(GetContext())
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}

	if jsonOutput {
		return printer.JSON(resp)
	}

	if len(resp.Objects) == 0 {
		printer.Info("No archives retained")
		return nil
	}

	table := output.NewTableWriter(printer.Out(), []string{"Archive", "Size", "Uploaded"}, quietMode)
	for _, o := range resp.Objects {
		table.Append([]string{o.Key, output.Size(o.Size), output.Ago(o.ModTime)})
	}
	table.Render()
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.JobStats(GetContext(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if jsonOutput {
		return printer.JSON(stats)
	}

	printer.Section("Job " + stats.JobID)
	printer.KeyValue("Files", strconv.Itoa(stats.TotalFiles))
	printer.KeyValue("Size", output.Size(stats.TotalBytes))
	printer.KeyValue("Images", strconv.Itoa(stats.Images))
	printer.KeyValue("Frames", strconv.Itoa(stats.Frames))

	if len(stats.ByExtension) > 0 {
		printer.Section("By extension")
		exts := make([]string, 0, len(stats.ByExtension))
		for ext := range stats.ByExtension {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			printer.KeyValue(ext, strconv.Itoa(stats.ByExtension[ext]))
		}
	}
	return nil
}
