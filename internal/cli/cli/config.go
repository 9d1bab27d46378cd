package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/frameset/internal/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and manage framesctl configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  base_url         Server base URL
  parallel         Default parallel uploads (1-20)
  model_name       Default model name for uploads
  sampling_factor  Default sampling factor (0-1)
  max_frames       Default maximum frames per video (1-500)
  frame_interval   Default frame interval in seconds (1-10)
  extensions       Default extensions, comma-separated

Examples:
  framesctl config set base_url https://frames.example.com
  framesctl config set max_frames 25
  framesctl config set extensions .jpg,.png,.mp4`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	RunE:  runConfigPath,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server is reachable",
	RunE:  runPing,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		return printer.JSON(cfg)
	}

	printer.Section("Configuration")
	printer.KeyValue("Base URL", cfg.BaseURL)
	printer.KeyValue("Parallel", strconv.Itoa(cfg.Parallel))

	d := cfg.Defaults
	if d.ModelName != "" {
		printer.KeyValue("Model", d.ModelName)
	}
	if d.SamplingFactor > 0 {
		printer.KeyValue("Sampling factor", strconv.FormatFloat(d.SamplingFactor, 'f', -1, 64))
	}
	if d.MaxFrames > 0 {
		printer.KeyValue("Max frames", strconv.Itoa(d.MaxFrames))
	}
	if d.FrameInterval > 0 {
		printer.KeyValue("Frame interval", strconv.Itoa(d.FrameInterval))
	}
	if len(d.Extensions) > 0 {
		printer.KeyValue("Extensions", strings.Join(d.Extensions, ", "))
	}

	printer.Section("Timeouts")
	printer.KeyValue("HTTP", cfg.GetTimeout("http").String())
	printer.KeyValue("Upload", cfg.GetTimeout("upload").String())
	printer.KeyValue("Status watch", cfg.GetTimeout("status_watch").String())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	// --server and FRAMESET_URL must not end up in the file.
	fileCfg, err := config.LoadFile()
	if err != nil {
		return err
	}
	if err := fileCfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := fileCfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]string{"key": args[0], "value": args[1]})
	}
	printer.Success("Set %s = %s", args[0], args[1])
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printer.JSON(map[string]string{"path": path})
	}
	printer.Println(path)
	return nil
}

func runPing(cmd *cobra.Command, args []string) error {
	health, err := apiClient.Health(GetContext())
	if err != nil {
		return fmt.Errorf("server %s unreachable: %w", apiClient.BaseURL(), err)
	}
	if jsonOutput {
		return printer.JSON(health)
	}
	printer.Success("%s is %s", apiClient.BaseURL(), health.Status)
	return nil
}
