package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/sqr-cli/pkg/synth"
)

// Scenario command flags.
var (
	scenarioOutput         string
	scenarioDuration       time.Duration
	scenarioUsers          int
	scenarioChunkDuration  time.Duration
	scenarioUpdateInterval time.Duration
	scenarioMeetings       int
	scenarioSegments       int
	scenarioGap            time.Duration
)

// ScenarioCmd groups the multi-meeting scenario builders.
var ScenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Build multi-meeting test scenarios from a template",
	Long: `Build multi-meeting test scenarios from a captured template.

Scenarios combine several synthetic meetings into one transaction log,
globally ordered by timestamp so overlapping meetings interleave the way
real concurrent traffic would. Every scenario is self-checked through
the loader and chunk validator before it is written.`,
}

// concurrentCmd builds overlapping meetings with staggered starts.
var concurrentCmd = &cobra.Command{
	Use:   "concurrent <template-file>",
	Short: "Build a scenario of overlapping meetings with staggered starts",
	Long: `Build a scenario of overlapping meetings with staggered starts.

Each meeting gets a fresh meeting id and starts five minutes after the
previous one, so the service sees genuinely concurrent meetings.

Examples:
  sqr scenario concurrent capture.json -o concurrent.json --meetings 3
  sqr scenario concurrent capture.json -o big.json --meetings 5 --users 4`,
	Args: cobra.ExactArgs(1),
	RunE: runConcurrent,
}

// extendedCmd builds one long meeting split by silent gaps.
var extendedCmd = &cobra.Command{
	Use:   "extended <template-file>",
	Short: "Build a scenario of one long meeting with silent gaps",
	Long: `Build a scenario of one long meeting split into segments
separated by silent gaps. Every segment reuses the same meeting id, so
the service sees a single meeting resuming after each pause.

Examples:
  sqr scenario extended capture.json -o extended.json --duration 90m --segments 3
  sqr scenario extended capture.json -o short-gaps.json --segments 3 --gap 2m`,
	Args: cobra.ExactArgs(1),
	RunE: runExtended,
}

// loadCmd builds a burst of meetings all starting at once.
var loadCmd = &cobra.Command{
	Use:   "load <template-file>",
	Short: "Build a load-test burst of meetings starting simultaneously",
	Long: `Build a load-test scenario: every meeting gets a fresh meeting
id and the same start time, so the service takes the full burst at once.

Examples:
  sqr scenario load capture.json -o burst.json --meetings 10 --users 4`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	for _, c := range []*cobra.Command{concurrentCmd, extendedCmd, loadCmd} {
		c.Flags().StringVarP(&scenarioOutput, "output-file", "o", "", "Output log file (required)")
		c.Flags().DurationVar(&scenarioDuration, "duration", synth.DefaultMeetingDuration, "Duration of each meeting")
		c.Flags().IntVar(&scenarioUsers, "users", synth.DefaultNumUsers, "Participants per meeting")
		c.Flags().DurationVar(&scenarioChunkDuration, "chunk-duration", time.Second, "Audio chunk duration")
		c.Flags().DurationVar(&scenarioUpdateInterval, "update-interval", synth.DefaultSpeakerUpdateInterval, "Speaker update interval")
		_ = c.MarkFlagRequired("output-file")
	}

	concurrentCmd.Flags().IntVar(&scenarioMeetings, "meetings", 2, "Number of concurrent meetings")
	extendedCmd.Flags().IntVar(&scenarioSegments, "segments", 2, "Number of meeting segments")
	extendedCmd.Flags().DurationVar(&scenarioGap, "gap", synth.ExtendedGap, "Silence between segments")
	loadCmd.Flags().IntVar(&scenarioMeetings, "meetings", 5, "Number of simultaneous meetings")

	ScenarioCmd.AddCommand(concurrentCmd)
	ScenarioCmd.AddCommand(extendedCmd)
	ScenarioCmd.AddCommand(loadCmd)
}

// scenarioBase builds the base meeting config from the scenario flags.
func scenarioBase() synth.MeetingConfig {
	base := synth.NewMeetingConfig()
	base.Duration = scenarioDuration
	base.NumUsers = scenarioUsers
	base.ChunkDuration = scenarioChunkDuration
	base.SpeakerUpdateInterval = scenarioUpdateInterval
	return base
}

func runConcurrent(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "scenario")

	generator, err := loadTemplateGenerator(args[0], logger)
	if err != nil {
		return err
	}

	configs := synth.ConcurrentMeetingConfigs(scenarioBase(), scenarioMeetings)
	return writeScenario(cmd, generator, configs, scenarioOutput)
}

func runExtended(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "scenario")

	generator, err := loadTemplateGenerator(args[0], logger)
	if err != nil {
		return err
	}

	configs := synth.ExtendedMeetingConfigs(scenarioBase(), scenarioSegments, scenarioGap)
	return writeScenario(cmd, generator, configs, scenarioOutput)
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "scenario")

	generator, err := loadTemplateGenerator(args[0], logger)
	if err != nil {
		return err
	}

	configs := synth.LoadMeetingConfigs(scenarioBase(), scenarioMeetings)
	return writeScenario(cmd, generator, configs, scenarioOutput)
}
