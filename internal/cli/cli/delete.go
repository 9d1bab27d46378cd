package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <image|folder|upload> <names...>",
	Short: "Delete extracted images, job folders or retained archives",
	Long: `Delete catalog items.

Examples:
  framesctl delete image 7f9c.../frame_0001.jpg   # One extracted file
  framesctl delete folder 7f9c... --force         # A job's whole output folder
  framesctl delete upload dataset.zip             # A retained archive`,
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"image", "folder", "upload"},
	RunE:      runDelete,
}

var deleteForce bool

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

type deleteResult struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

func runDelete(cmd *cobra.Command, args []string) error {
	kind, names := args[0], args[1:]

	var del func(ctx context.Context, name string) error
	switch kind {
	case "image":
		del = apiClient.DeleteImage
	case "folder":
		del = apiClient.DeleteFolder
	case "upload":
		del = apiClient.DeleteUpload
	default:
		return fmt.Errorf("unknown kind %q: use image, folder or upload", kind)
	}

	if !deleteForce && !jsonOutput {
		printer.Printf("Delete %d %s(s)? [y/N] ", len(names), kind)
		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			printer.Info("Cancelled")
			return nil
		}
	}

	ctx := GetContext()
	var successful, failed int
	results := make([]deleteResult, 0, len(names))

	for _, name := range names {
		if err := del(ctx, name); err != nil {
			printer.ItemFailed(name, err)
			results = append(results, deleteResult{Name: name, Error: err.Error()})
			failed++
			continue
		}
		printer.Success("Deleted %s", name)
		results = append(results, deleteResult{Name: name, Deleted: true})
		successful++
	}

	if jsonOutput {
		if err := printer.JSON(map[string]any{
			"results":    results,
			"total":      len(names),
			"successful": successful,
			"failed":     failed,
		}); err != nil {
			return err
		}
	} else {
		printer.Summary(successful, failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d deletions failed", failed)
	}
	return nil
}
