// Package main provides the sqr CLI entry point.
// sqr replays, validates and fabricates StreamQueue transaction logs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/sqr-cli/cmd"
	"github.com/otherjamesbrown/sqr-cli/config"
	"github.com/otherjamesbrown/sqr-cli/pkg/buildinfo"
)

// Global flags.
var (
	serviceURL   string
	timeout      time.Duration
	outputFormat string
	debug        bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sqr",
	Short: "StreamQueue replay CLI - transaction log tooling",
	Long: `sqr is the command-line interface for StreamQueue transaction logs.

It replays captured meeting traffic (audio chunk uploads and speaker
activity updates) against a running service, validates captures without
sending anything, and fabricates synthetic meeting logs from captured
templates.

COMMON WORKFLOWS:
  Check a capture:   sqr validate capture.json
  Replay a capture:  sqr auth register  →  sqr replay capture.json
  Fabricate load:    sqr generate capture.json -o meeting.json --duration 1h
  Scale testing:     sqr scenario concurrent capture.json -o load.json --meetings 5

Run 'sqr <command> --help' for subcommands, flags, and examples.`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		cmd.SetGlobalFlags(serviceURL, timeout, outputFormat, debug)
		return nil
	},
	SilenceUsage: true,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get()
		if outputFormat == "json" {
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(c.OutOrStdout(), "sqr %s\n", buildinfo.String())
		fmt.Fprintf(c.OutOrStdout(), "  go: %s\n", info.GoVersion)
		return nil
	},
}

// configCmd groups configuration inspection and setup.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sqr configuration",
	Long: `Manage the sqr configuration file.

The configuration lives in ~/.sqr/config.yaml (override the directory
with SQR_CONFIG_DIR). Every setting can also be overridden with SQR_*
environment variables; run 'sqr config show' to see the effective
values.`,
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		path, _ := config.ConfigPath()
		fmt.Fprintf(c.OutOrStdout(), "# %s\n", path)
		fmt.Fprint(c.OutOrStdout(), string(data))
		return nil
	},
}

// configInitCmd writes a default configuration file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(c *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration already exists at %s", path)
		}
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service-url", "", "Service base URL (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(cmd.ReplayCmd)
	rootCmd.AddCommand(cmd.ValidateCmd)
	rootCmd.AddCommand(cmd.GenerateCmd)
	rootCmd.AddCommand(cmd.ScenarioCmd)
	rootCmd.AddCommand(cmd.AuthCmd)
	rootCmd.AddCommand(cmd.ServiceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
