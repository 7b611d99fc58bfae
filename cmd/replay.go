package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/sqr-cli/config"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/replay"
)

// Replay command flags.
var (
	replayNoTiming  bool
	replayTimeScale float64
	replayOrder     string
	replayChunkDir  string
	replayTolerant  bool
	replayPrepare   bool
)

// ReplayCmd replays a captured transaction log against the service.
var ReplayCmd = &cobra.Command{
	Use:   "replay <log-file>",
	Short: "Replay a captured transaction log against the service",
	Long: `Replay a captured transaction log against the service.

The log is validated before any call is dispatched: every connection
must start at chunk index 0. Gaps later in a sequence are reported as
warnings and replayed around. Individual send failures never stop the
run; they are collected and summarized at the end.

By default calls are dispatched in timestamp order with the original
inter-call delays reproduced. Use --no-timing for a fastest-possible
replay, or --time-scale to slow it down or speed it up.

Examples:
  # Replay at captured speed
  sqr replay capture.json

  # Replay as fast as possible
  sqr replay capture.json --no-timing

  # Replay at half speed, keeping chunk accumulation files
  sqr replay capture.json --time-scale 2.0 --chunk-dir ./chunks

  # Replay in original file order, dropping unparseable audio entries
  sqr replay capture.json --order file --tolerant`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	ReplayCmd.Flags().BoolVar(&replayNoTiming, "no-timing", false, "Dispatch without reproducing captured delays")
	ReplayCmd.Flags().Float64Var(&replayTimeScale, "time-scale", 0, "Delay multiplier (2.0 = half speed)")
	ReplayCmd.Flags().StringVar(&replayOrder, "order", "", "Dispatch order: timestamp or file")
	ReplayCmd.Flags().StringVar(&replayChunkDir, "chunk-dir", "", "Directory for per-connection chunk accumulation files")
	ReplayCmd.Flags().BoolVar(&replayTolerant, "tolerant", false, "Drop invalid audio entries instead of failing the load")
	ReplayCmd.Flags().BoolVar(&replayPrepare, "prepare", false, "Flush service caches and register the user token before replaying")
	ReplayCmd.Flags().StringVar(&serviceToken, "service-token", "", "Service bearer token for --prepare (or SQR_SERVICE_TOKEN)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	applyReplayFlags(cfg)

	logger := newLogger(cfg, "replay")

	sender, err := newServiceClient(cfg, logger)
	if err != nil {
		return err
	}

	if replayPrepare {
		if err := prepareService(cmd, logger); err != nil {
			return fmt.Errorf("preparing service: %w", err)
		}
	}

	metrics := replay.NewMetrics(prometheus.NewRegistry())
	scheduler := replay.NewScheduler(sender, replay.Options{
		PreserveTiming: cfg.PreserveTiming,
		TimeScale:      cfg.TimeScale,
		Order:          replay.DispatchOrder(cfg.DispatchOrder),
		ChunkDir:       cfg.ChunkDir,
	}, metrics, logger)

	loader := harlog.NewLoader(harlog.Options{Mode: loaderMode(cfg)}, logger)

	result, err := scheduler.RunFile(cmd.Context(), loader, args[0])
	if err != nil {
		if result != nil {
			_ = printReplayResult(cmd.OutOrStdout(), cfg, result)
		}
		return err
	}

	if err := printReplayResult(cmd.OutOrStdout(), cfg, result); err != nil {
		return err
	}
	if !result.FullySent() {
		return fmt.Errorf("replay finished with %d failures", len(result.Failures))
	}
	return nil
}

// applyReplayFlags overlays the replay flags onto the loaded config.
func applyReplayFlags(cfg *config.CLIConfig) {
	if replayNoTiming {
		cfg.PreserveTiming = false
	}
	if replayTimeScale > 0 {
		cfg.TimeScale = replayTimeScale
	}
	if replayOrder != "" {
		cfg.DispatchOrder = replayOrder
	}
	if replayChunkDir != "" {
		cfg.ChunkDir = replayChunkDir
	}
	if replayTolerant {
		cfg.LoadMode = config.ModeTolerant
	}
}
