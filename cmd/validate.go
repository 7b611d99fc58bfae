package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/sqr-cli/config"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/replay"
)

// ValidateCmd checks a transaction log without sending anything.
var ValidateCmd = &cobra.Command{
	Use:   "validate <log-file>",
	Short: "Validate a transaction log without replaying it",
	Long: `Validate a transaction log without dispatching any calls.

The log is parsed in tolerant mode so every problem is reported rather
than stopping at the first one. The chunk sequence check then runs per
connection: a sequence that does not start at index 0 fails validation,
gaps are reported as warnings.

Examples:
  sqr validate capture.json
  sqr validate capture.json --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "validate")

	loader := harlog.NewLoader(harlog.Options{Mode: harlog.ModeTolerant}, logger)
	log, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	audio := log.AudioCalls()
	warnings, vErr := replay.ValidateChunks(audio)
	warnings = append(log.Warnings, warnings...)

	out := cmd.OutOrStdout()
	if cfg.OutputFormat == config.OutputFormatJSON {
		result := struct {
			Valid        bool     `json:"valid"`
			AudioCalls   int      `json:"audio_calls"`
			SpeakerCalls int      `json:"speaker_calls"`
			Warnings     []string `json:"warnings,omitempty"`
			Error        string   `json:"error,omitempty"`
		}{
			Valid:        vErr == nil,
			AudioCalls:   len(audio),
			SpeakerCalls: len(log.SpeakerCalls()),
			Warnings:     warnings,
		}
		if vErr != nil {
			result.Error = vErr.Error()
		}
		if err := printJSON(out, result); err != nil {
			return err
		}
		return vErr
	}

	fmt.Fprintf(out, "%d audio calls, %d speaker calls\n", len(audio), len(log.SpeakerCalls()))
	for _, w := range warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if vErr != nil {
		return vErr
	}
	fmt.Fprintln(out, "Log is valid.")
	return nil
}
