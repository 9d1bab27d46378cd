package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/frameset/internal/cli/client"
	"github.com/abdul-hamid-achik/frameset/internal/cli/output"
)

const maxConsecutiveErrors = 5

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show an extraction job",
	Long: `Show the status and counters of an extraction job.

Examples:
  framesctl status 7f9c...            # Current status
  framesctl status 7f9c... --watch    # Follow until completed or failed
  framesctl status 7f9c... --files    # Include the extracted file list`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	statusWatch bool
	statusFiles bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List extraction jobs",
	RunE:  runJobs,
}

var (
	jobsLimit  int
	jobsOffset int
	jobsStatus string
)

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Watch until the job finishes")
	statusCmd.Flags().BoolVar(&statusFiles, "files", false, "List extracted files")

	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to list")
	jobsCmd.Flags().IntVar(&jobsOffset, "offset", 0, "Jobs to skip")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (pending, extracting, completed, failed)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	jobID := args[0]

	if statusWatch {
		return watchJob(ctx, jobID)
	}

	j, err := apiClient.GetJob(ctx, jobID)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("job %s not found", jobID)
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	if jsonOutput {
		return printer.JSON(j)
	}
	printJob(j)
	return nil
}

func printJob(j *client.Job) {
	printer.Section("Job")
	printer.KeyValue("ID", j.ID)
	printer.KeyValue("Archive", j.ArchiveName)
	printer.KeyValue("Status", output.Status(j.Status))
	printer.KeyValue("Created", output.Ago(j.CreatedAt))
	if j.StartedAt != nil && j.FinishedAt != nil {
		printer.KeyValue("Duration", j.FinishedAt.Sub(*j.StartedAt).Round(time.Millisecond).String())
	}
	if j.OutputDirectory != "" {
		printer.KeyValue("Output", j.OutputDirectory)
	}
	if j.Error != "" {
		printer.KeyValue("Error", fmt.Sprintf("%s (%s)", j.Error, j.ErrorCode))
	}

	printer.Section("Counters")
	printer.KeyValue("Entries", strconv.FormatInt(j.Counters.TotalEntries, 10))
	printer.KeyValue("Images", strconv.FormatInt(j.Counters.ImagesExtracted, 10))
	printer.KeyValue("Videos", strconv.FormatInt(j.Counters.VideosProcessed, 10))
	printer.KeyValue("Frames", strconv.FormatInt(j.Counters.FramesExtracted, 10))
	printer.KeyValue("Errors", strconv.FormatInt(j.Counters.Errors, 10))

	if statusFiles && len(j.Files) > 0 {
		printer.Section(fmt.Sprintf("Files (%d)", len(j.Files)))
		for _, f := range j.Files {
			printer.Indent("%s", f)
		}
	}
}

func watchJob(ctx context.Context, jobID string) error {
	spinner := output.NewSpinner(fmt.Sprintf("Watching %s...", jobID), quietMode || jsonOutput)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	timeout := time.After(cfg.GetTimeout("status_watch"))
	var consecutiveErrors int

	for {
		j, err := apiClient.GetJob(ctx, jobID)
		switch {
		case err != nil && client.IsNotFound(err):
			spinner.Finish()
			return fmt.Errorf("job %s not found", jobID)
		case err != nil:
			consecutiveErrors++
			spinner.Update(fmt.Sprintf("Status: error (%d/%d retries)", consecutiveErrors, maxConsecutiveErrors))
			if consecutiveErrors >= maxConsecutiveErrors {
				spinner.Finish()
				return fmt.Errorf("failed after %d consecutive errors: %w", consecutiveErrors, err)
			}
		default:
			consecutiveErrors = 0
			spinner.Update(fmt.Sprintf("Status: %s, %d frames", j.Status, j.Counters.FramesExtracted))

			if j.Terminal() {
				spinner.Finish()
				if jsonOutput {
					return printer.JSON(j)
				}
				printJob(j)
				if j.Status == "failed" {
					return fmt.Errorf("job %s failed: %s", jobID, j.Error)
				}
				printer.Success("Job %s completed", jobID)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			spinner.Finish()
			return ctx.Err()
		case <-timeout:
			spinner.Finish()
			return fmt.Errorf("timed out waiting for job %s", jobID)
		case <-ticker.C:
		}
	}
}

func runJobs(cmd *cobra.Command, args []string) error {
	list, err := apiClient.ListJobs(GetContext(), jobsLimit, jobsOffset, jobsStatus)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if jsonOutput {
		return printer.JSON(list)
	}

	if len(list.Jobs) == 0 {
		printer.Info("No jobs found")
		return nil
	}

	table := output.NewTableWriter(printer.Out(), []string{"ID", "Archive", "Status", "Images", "Frames", "Errors", "Created"}, quietMode)
	for _, j := range list.Jobs {
		table.Append([]string{
			j.ID,
			output.Truncate(j.ArchiveName, 32),
			output.Status(j.Status),
			strconv.FormatInt(j.Counters.ImagesExtracted, 10),
			strconv.FormatInt(j.Counters.FramesExtracted, 10),
			strconv.FormatInt(j.Counters.Errors, 10),
			output.Ago(j.CreatedAt),
		})
	}
	table.Render()

	if list.HasMore {
		printer.Info("Showing %d of %d jobs; use --offset %d for more", len(list.Jobs), list.Total, jobsOffset+len(list.Jobs))
	}
	return nil
}
