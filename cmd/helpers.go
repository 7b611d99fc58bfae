// Package cmd provides CLI commands for the sqr tool.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/otherjamesbrown/sqr-cli/client"
	"github.com/otherjamesbrown/sqr-cli/config"
	"github.com/otherjamesbrown/sqr-cli/credentials"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
	"github.com/otherjamesbrown/sqr-cli/pkg/replay"
)

// loadCLIConfig loads the configuration and applies the global flag
// overrides registered on the root command.
func loadCLIConfig() (*config.CLIConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if globalServiceURL != "" {
		cfg.ServiceURL = globalServiceURL
	}
	if globalTimeout != 0 {
		cfg.Timeout = globalTimeout
	}
	if globalOutput != "" {
		cfg.OutputFormat = config.OutputFormat(globalOutput)
	}
	if globalDebug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Global flags shared by every command. Registered by the root command
// in main.
var (
	globalServiceURL string
	globalTimeout    time.Duration
	globalOutput     string
	globalDebug      bool
)

// SetGlobalFlags lets the root command hand its persistent flag values
// to the command implementations.
func SetGlobalFlags(serviceURL string, timeout time.Duration, output string, debug bool) {
	globalServiceURL = serviceURL
	globalTimeout = timeout
	globalOutput = output
	globalDebug = debug
}

// newLogger builds the CLI logger for a component.
func newLogger(cfg *config.CLIConfig, component string) logging.Logger {
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:      level,
		Component:  component,
		JSONFormat: cfg.OutputFormat == config.OutputFormatJSON,
	})
}

// loaderMode maps the configured load mode onto the loader option.
func loaderMode(cfg *config.CLIConfig) harlog.Mode {
	if cfg.LoadMode == config.ModeTolerant {
		return harlog.ModeTolerant
	}
	return harlog.ModeStrict
}

// newServiceClient builds an authenticated client for the configured
// service. A missing credential store entry is not fatal: the client is
// returned without a user token and the service rejects the calls,
// which the replay result then reports.
func newServiceClient(cfg *config.CLIConfig, logger logging.Logger) (*client.Client, error) {
	opts := client.DefaultOptions()
	opts.Timeout = cfg.Timeout

	store, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	creds, err := store.GetActiveCredential()
	switch {
	case err == nil:
		opts.UserToken = creds.Token
	case errors.Is(err, credentials.ErrNoCredentials):
		logger.Warn("no stored credentials, calls will be unauthenticated; run 'sqr auth register' or 'sqr auth login'")
	default:
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	return client.NewClient(cfg.ServiceURL, opts), nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReplayResult renders a replay result in the configured format.
func printReplayResult(w io.Writer, cfg *config.CLIConfig, result *replay.Result) error {
	if cfg.OutputFormat == config.OutputFormatJSON {
		type failure struct {
			Kind         string `json:"kind"`
			ConnectionID string `json:"connection_id"`
			MeetingID    string `json:"meeting_id"`
			ChunkIndex   int    `json:"chunk_index"`
			Error        string `json:"error"`
		}
		out := struct {
			AudioSent    int              `json:"audio_sent"`
			SpeakersSent int              `json:"speakers_sent"`
			FullySent    bool             `json:"fully_sent"`
			Failures     []failure        `json:"failures,omitempty"`
			Missing      map[string][]int `json:"missing,omitempty"`
			Warnings     []string         `json:"warnings,omitempty"`
		}{
			AudioSent:    result.AudioSent,
			SpeakersSent: result.SpeakersSent,
			FullySent:    result.FullySent(),
			Missing:      result.Missing,
			Warnings:     result.Warnings,
		}
		for _, f := range result.Failures {
			out.Failures = append(out.Failures, failure{
				Kind:         string(f.Kind),
				ConnectionID: f.ConnectionID,
				MeetingID:    f.MeetingID,
				ChunkIndex:   f.ChunkIndex,
				Error:        f.Err.Error(),
			})
		}
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Replay complete: %d audio chunks, %d speaker updates sent\n",
		result.AudioSent, result.SpeakersSent)
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, f := range result.Failures {
		if f.Kind == harlog.KindAudio {
			fmt.Fprintf(w, "  failed: audio chunk %d on connection %s: %v\n",
				f.ChunkIndex, f.ConnectionID, f.Err)
		} else {
			fmt.Fprintf(w, "  failed: speakers update for meeting %s: %v\n", f.MeetingID, f.Err)
		}
	}
	for id, missing := range result.Missing {
		fmt.Fprintf(w, "  incomplete: connection %s missing chunks %v\n", id, missing)
	}
	if result.FullySent() {
		fmt.Fprintln(w, "All connections fully sent.")
	}
	return nil
}
