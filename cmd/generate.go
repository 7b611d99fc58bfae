package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
	"github.com/otherjamesbrown/sqr-cli/pkg/synth"
)

// Generate command flags.
var (
	generateOutput         string
	generateDuration       time.Duration
	generateUsers          int
	generateChunkDuration  time.Duration
	generateUpdateInterval time.Duration
	generateMeetingID      string
)

// GenerateCmd fabricates a synthetic meeting log from a template.
var GenerateCmd = &cobra.Command{
	Use:   "generate <template-file>",
	Short: "Generate a synthetic meeting log from a captured template",
	Long: `Generate a synthetic meeting log from a captured template.

The template log is scanned for audio/speaker co-occurrence patterns,
then a new meeting of the requested duration and user count is
fabricated from those patterns. The output is a transaction log in the
same format as a capture, so it can be validated and replayed like one.

Generated chunk indices are always contiguous and zero-based per
connection, and the output is self-checked through the loader and
validator before it is written.

Examples:
  sqr generate capture.json -o meeting.json
  sqr generate capture.json -o long.json --duration 2h --users 4
  sqr generate capture.json -o fixed.json --meeting-id meeting-xyz`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	GenerateCmd.Flags().StringVarP(&generateOutput, "output-file", "o", "", "Output log file (required)")
	GenerateCmd.Flags().DurationVar(&generateDuration, "duration", synth.DefaultMeetingDuration, "Meeting duration")
	GenerateCmd.Flags().IntVar(&generateUsers, "users", synth.DefaultNumUsers, "Number of participants")
	GenerateCmd.Flags().DurationVar(&generateChunkDuration, "chunk-duration", time.Second, "Audio chunk duration")
	GenerateCmd.Flags().DurationVar(&generateUpdateInterval, "update-interval", synth.DefaultSpeakerUpdateInterval, "Speaker update interval")
	GenerateCmd.Flags().StringVar(&generateMeetingID, "meeting-id", "", "Meeting id (default: random)")
	_ = GenerateCmd.MarkFlagRequired("output-file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "generate")

	generator, err := loadTemplateGenerator(args[0], logger)
	if err != nil {
		return err
	}

	meeting := synth.NewMeetingConfig()
	meeting.Duration = generateDuration
	meeting.NumUsers = generateUsers
	meeting.ChunkDuration = generateChunkDuration
	meeting.SpeakerUpdateInterval = generateUpdateInterval
	if generateMeetingID != "" {
		meeting.MeetingID = generateMeetingID
	} else if cfg.DefaultMeetingID != "" {
		meeting.MeetingID = cfg.DefaultMeetingID
	}

	return writeScenario(cmd, generator, []synth.MeetingConfig{meeting}, generateOutput)
}

// loadTemplateGenerator loads a template log and builds a generator
// over its extracted patterns. Template loads are always tolerant.
func loadTemplateGenerator(path string, logger logging.Logger) (*synth.Generator, error) {
	loader := harlog.NewLoader(harlog.Options{Mode: harlog.ModeTolerant}, logger)
	log, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}

	tmpl, err := synth.NewExtractor(synth.ExtractorOptions{}, logger).Extract(log)
	if err != nil {
		return nil, fmt.Errorf("extracting template patterns: %w", err)
	}

	return synth.NewGenerator(tmpl, logger), nil
}

// writeScenario builds, self-checks and writes a scenario, then reports
// where it went.
func writeScenario(cmd *cobra.Command, generator *synth.Generator, configs []synth.MeetingConfig, path string) error {
	arch, err := generator.BuildScenario(configs)
	if err != nil {
		return err
	}
	if err := synth.SelfCheck(arch, nil); err != nil {
		return err
	}
	if err := harlog.WriteFile(path, arch); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries across %d meetings to %s\n",
		len(arch.Log.Entries), len(configs), path)
	return nil
}
