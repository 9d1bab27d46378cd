package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/frameset/internal/cli/client"
	"github.com/abdul-hamid-achik/frameset/internal/cli/output"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [archives...]",
	Short: "Upload zip archives for frame extraction",
	Long: `Upload one or more zip archives. Each archive becomes an extraction job.

Examples:
  framesctl upload dataset.zip                        # Queue one archive
  framesctl upload batches/*.zip -p 4                 # Several archives in parallel
  framesctl upload batches/ --recursive               # Every .zip under a directory
  framesctl upload clips.zip --sync                   # Extract before returning
  framesctl upload clips.zip --max-frames 25 -w       # Queue, then wait for the job
  framesctl upload mixed.zip --ext .jpg,.png,.mp4     # Narrow accepted extensions`,
	RunE: runUpload,
}

var (
	uploadSync           bool
	uploadWait           bool
	uploadModel          string
	uploadSamplingFactor float64
	uploadMaxFrames      int
	uploadInterval       int
	uploadExtensions     string
	uploadParallel       int
	uploadRecursive      bool
)

func init() {
	uploadCmd.Flags().BoolVar(&uploadSync, "sync", false, "Process the archive before the server responds")
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "Wait for queued jobs to finish")
	uploadCmd.Flags().StringVar(&uploadModel, "model", "", "Model name recorded with the job")
	uploadCmd.Flags().Float64Var(&uploadSamplingFactor, "sampling-factor", 0, "Sampling factor in [0,1]")
	uploadCmd.Flags().IntVar(&uploadMaxFrames, "max-frames", 0, "Maximum frames per video (1-500)")
	uploadCmd.Flags().IntVar(&uploadInterval, "interval", 0, "Frame interval in seconds (1-10)")
	uploadCmd.Flags().StringVar(&uploadExtensions, "ext", "", "Comma-separated extensions to extract")
	uploadCmd.Flags().IntVarP(&uploadParallel, "parallel", "p", 0, "Parallel uploads (default from config)")
	uploadCmd.Flags().BoolVarP(&uploadRecursive, "recursive", "r", false, "Search directories recursively")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no archives specified")
	}

	archives, err := collectArchives(args, uploadRecursive)
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		return fmt.Errorf("no zip archives to upload")
	}

	parallel := uploadParallel
	if parallel <= 0 {
		parallel = cfg.Parallel
	}

	return uploadArchives(GetContext(), archives, uploadOptions(), parallel)
}

// uploadOptions merges flags over the configured defaults.
func uploadOptions() client.UploadOptions {
	d := cfg.Defaults
	opts := client.UploadOptions{
		Sync:           uploadSync,
		ModelName:      d.ModelName,
		SamplingFactor: d.SamplingFactor,
		MaxFrames:      d.MaxFrames,
		FrameInterval:  d.FrameInterval,
		Extensions:     d.Extensions,
	}
	if uploadModel != "" {
		opts.ModelName = uploadModel
	}
	if uploadSamplingFactor > 0 {
		opts.SamplingFactor = uploadSamplingFactor
	}
	if uploadMaxFrames > 0 {
		opts.MaxFrames = uploadMaxFrames
	}
	if uploadInterval > 0 {
		opts.FrameInterval = uploadInterval
	}
	if uploadExtensions != "" {
		opts.Extensions = splitList(uploadExtensions)
	}
	return opts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func collectArchives(args []string, recursive bool) ([]string, error) {
	var archives []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", arg, err)
		}

		if len(matches) == 0 {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}

			if !info.IsDir() {
				if isArchive(match) {
					archives = append(archives, match)
				}
				continue
			}

			if !recursive {
				entries, err := os.ReadDir(match)
				if err != nil {
					return nil, err
				}
				for _, e := range entries {
					if !e.IsDir() && isArchive(e.Name()) {
						archives = append(archives, filepath.Join(match, e.Name()))
					}
				}
				continue
			}

			err = filepath.WalkDir(match, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if !d.IsDir() && isArchive(path) {
					archives = append(archives, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return archives, nil
}

func isArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

func uploadOne(ctx context.Context, path string, opts client.UploadOptions, showBytes bool) client.UploadResult {
	result := client.UploadResult{File: path}

	var progress *output.ByteProgress
	if showBytes {
		var size int64 = -1
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		progress = output.NewByteProgress(size, filepath.Base(path), quietMode || jsonOutput)
	}

	var resp *client.UploadResponse
	var err error
	if progress != nil {
		resp, err = apiClient.Upload(ctx, path, opts, progress)
		progress.Finish()
	} else {
		resp, err = apiClient.Upload(ctx, path, opts, nil)
	}
	if err != nil {
		result.Error = err
		return result
	}

	result.JobID = resp.JobID
	if resp.Job != nil {
		result.Status = resp.Job.Status
	}

	if uploadWait && !opts.Sync && resp.JobID != "" {
		j, err := apiClient.WaitForJob(ctx, resp.JobID, 2*time.Second, cfg.GetTimeout("upload"))
		if j != nil {
			result.Status = j.Status
		}
		if err != nil {
			result.Error = fmt.Errorf("waiting for job %s: %w", resp.JobID, err)
			return result
		}
	}

	if result.Status == "failed" {
		result.Error = fmt.Errorf("job %s failed", resp.JobID)
	}
	return result
}

func uploadArchives(ctx context.Context, archives []string, opts client.UploadOptions, parallel int) error {
	var uploaded, failed []client.UploadResult

	if len(archives) == 1 {
		r := uploadOne(ctx, archives[0], opts, true)
		if r.Error != nil {
			failed = append(failed, r)
		} else {
			uploaded = append(uploaded, r)
		}
	} else {
		if !quietMode && !jsonOutput {
			printer.Printf("Uploading %d archives...\n", len(archives))
		}

		results := make(chan client.UploadResult, len(archives))
		sem := make(chan struct{}, parallel)
		var wg sync.WaitGroup

		progress := output.NewProgress(len(archives), "Uploading", output.ProgressWithQuiet(quietMode || jsonOutput))

		for _, archive := range archives {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				results <- uploadOne(ctx, path, opts, false)
				progress.Increment()
			}(archive)
		}

		go func() {
			wg.Wait()
			close(results)
		}()

		for r := range results {
			if r.Error != nil {
				failed = append(failed, r)
			} else {
				uploaded = append(uploaded, r)
			}
		}
		progress.Finish()
	}

	for i := range failed {
		failed[i].ErrMsg = failed[i].Error.Error()
		printer.ItemFailed(failed[i].File, failed[i].Error)
	}
	for _, r := range uploaded {
		printer.ArchiveUploaded(filepath.Base(r.File), r.JobID, r.Status)
	}

	if jsonOutput {
		if err := printer.JSON(client.UploadSummary{
			Uploaded:   uploaded,
			Failed:     failed,
			Total:      len(archives),
			Successful: len(uploaded),
		}); err != nil {
			return err
		}
	} else {
		printer.Summary(len(uploaded), len(failed))
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d uploads failed", len(failed), len(archives))
	}
	return nil
}
