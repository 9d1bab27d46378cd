// Package cli implements framesctl, the command-line client for the frameset
// server.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/frameset/internal/cli/client"
	"github.com/abdul-hamid-achik/frameset/internal/cli/config"
	"github.com/abdul-hamid-achik/frameset/internal/cli/output"
	"github.com/abdul-hamid-achik/frameset/internal/cli/version"
)

var (
	jsonOutput bool
	quietMode  bool
	noColor    bool
	serverURL  string
	cfg        *config.Config
	apiClient  client.ClientInterface
	printer    *output.Printer
)

// newClient is replaced in tests.
var newClient = func(c *config.Config) client.ClientInterface {
	return client.New(c.BaseURL, c.GetTimeout("http"))
}

var rootCmd = &cobra.Command{
	Use:   "framesctl",
	Short: "framesctl - upload archives to frameset and browse extracted frames",
	Long: `framesctl is the command-line client for a frameset server.

Upload zip archives of images and videos, follow extraction jobs, and manage
the resulting image catalog.

Get started:
  framesctl config set base_url http://localhost:8080
  framesctl upload dataset.zip --wait    # Upload and wait for extraction
  framesctl jobs                         # List recent jobs
  framesctl images --job <job-id>        # Browse extracted files`,
	Version: version.Full(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if serverURL != "" {
			cfg.BaseURL = serverURL
		}

		printer = output.New(
			output.WithJSON(jsonOutput),
			output.WithQuiet(quietMode),
			output.WithNoColor(noColor),
			output.WithOutput(cmd.OutOrStdout()),
			output.WithErrOutput(cmd.ErrOrStderr()),
		)

		apiClient = newClient(cfg)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

var (
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// GetContext returns a context cancelled on SIGINT or SIGTERM.
func GetContext() context.Context {
	if rootCtx == nil {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	}
	return rootCtx
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL (overrides config and "+config.EnvBaseURL+")")

	rootCmd.SetVersionTemplate("framesctl version {{.Version}}\n")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(uploadsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pingCmd)
}
