// Package config provides CLI configuration management for the sqr
// command-line tool. It supports loading configuration from YAML files,
// environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
)

// Dispatch order values accepted in the dispatch_order setting.
const (
	OrderTimestamp = "timestamp"
	OrderFile      = "file"
)

// Load mode values accepted in the load_mode setting.
const (
	ModeStrict   = "strict"
	ModeTolerant = "tolerant"
)

// Default configuration values.
const (
	DefaultServiceURL   = "http://localhost:8080"
	DefaultTimeout      = 30 * time.Second
	DefaultTimeScale    = 1.0
	DefaultOutputFormat = OutputFormatText
	DefaultConfigDir    = ".sqr"
	DefaultConfigFile   = "config.yaml"
)

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// ServiceURL is the base URL of the transcription service.
	ServiceURL string `yaml:"service_url"`

	// EngineURL is the base URL of the engine used for test-user
	// registration. If empty, registration commands fail with a hint.
	EngineURL string `yaml:"engine_url,omitempty"`

	// Timeout is the default timeout for API requests.
	Timeout time.Duration `yaml:"timeout"`

	// PreserveTiming reproduces captured inter-call delays during replay.
	PreserveTiming bool `yaml:"preserve_timing"`

	// TimeScale multiplies reproduced delays (2.0 = half speed).
	TimeScale float64 `yaml:"time_scale"`

	// DispatchOrder is the replay dispatch ordering: timestamp or file.
	DispatchOrder string `yaml:"dispatch_order"`

	// LoadMode is the transaction log load mode: strict or tolerant.
	LoadMode string `yaml:"load_mode"`

	// ChunkDir, when set, enables per-connection chunk accumulation
	// files during replay.
	ChunkDir string `yaml:"chunk_dir,omitempty"`

	// DefaultMeetingID overrides the generated meeting id when set.
	DefaultMeetingID string `yaml:"default_meeting_id,omitempty"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		ServiceURL:     DefaultServiceURL,
		Timeout:        DefaultTimeout,
		PreserveTiming: true,
		TimeScale:      DefaultTimeScale,
		DispatchOrder:  OrderTimestamp,
		LoadMode:       ModeStrict,
		OutputFormat:   DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $SQR_CONFIG_DIR if set, otherwise ~/.sqr
func ConfigDir() (string, error) {
	if dir := os.Getenv("SQR_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.sqr/config.yaml or $SQR_CONFIG_DIR/config.yaml)
// 3. Environment variables (SQR_SERVICE_URL, SQR_TIMEOUT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Duration is a string in the file; booleans and floats are pointers
	// so an absent key keeps the default.
	type configFile struct {
		ServiceURL       string       `yaml:"service_url"`
		EngineURL        string       `yaml:"engine_url"`
		Timeout          string       `yaml:"timeout"`
		PreserveTiming   *bool        `yaml:"preserve_timing"`
		TimeScale        *float64     `yaml:"time_scale"`
		DispatchOrder    string       `yaml:"dispatch_order"`
		LoadMode         string       `yaml:"load_mode"`
		ChunkDir         string       `yaml:"chunk_dir"`
		DefaultMeetingID string       `yaml:"default_meeting_id"`
		OutputFormat     OutputFormat `yaml:"output_format"`
		Debug            *bool        `yaml:"debug"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.ServiceURL != "" {
		cfg.ServiceURL = fileCfg.ServiceURL
	}
	if fileCfg.EngineURL != "" {
		cfg.EngineURL = fileCfg.EngineURL
	}
	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.PreserveTiming != nil {
		cfg.PreserveTiming = *fileCfg.PreserveTiming
	}
	if fileCfg.TimeScale != nil {
		cfg.TimeScale = *fileCfg.TimeScale
	}
	if fileCfg.DispatchOrder != "" {
		cfg.DispatchOrder = fileCfg.DispatchOrder
	}
	if fileCfg.LoadMode != "" {
		cfg.LoadMode = fileCfg.LoadMode
	}
	if fileCfg.ChunkDir != "" {
		cfg.ChunkDir = fileCfg.ChunkDir
	}
	if fileCfg.DefaultMeetingID != "" {
		cfg.DefaultMeetingID = fileCfg.DefaultMeetingID
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.Debug != nil {
		cfg.Debug = *fileCfg.Debug
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("SQR_SERVICE_URL"); v != "" {
		cfg.ServiceURL = v
	}

	if v := os.Getenv("SQR_ENGINE_URL"); v != "" {
		cfg.EngineURL = v
	}

	if v := os.Getenv("SQR_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("SQR_PRESERVE_TIMING"); v != "" {
		cfg.PreserveTiming = v == "true" || v == "1"
	}

	if v := os.Getenv("SQR_TIME_SCALE"); v != "" {
		if scale, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TimeScale = scale
		}
	}

	if v := os.Getenv("SQR_DISPATCH_ORDER"); v != "" {
		cfg.DispatchOrder = v
	}

	if v := os.Getenv("SQR_LOAD_MODE"); v != "" {
		cfg.LoadMode = v
	}

	if v := os.Getenv("SQR_CHUNK_DIR"); v != "" {
		cfg.ChunkDir = v
	}

	if v := os.Getenv("SQR_DEFAULT_MEETING_ID"); v != "" {
		cfg.DefaultMeetingID = v
	}

	if v := os.Getenv("SQR_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("SQR_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("service_url is required")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.TimeScale <= 0 {
		return fmt.Errorf("time_scale must be positive")
	}

	if c.DispatchOrder != OrderTimestamp && c.DispatchOrder != OrderFile {
		return fmt.Errorf("invalid dispatch_order: %q (must be timestamp or file)", c.DispatchOrder)
	}

	if c.LoadMode != ModeStrict && c.LoadMode != ModeTolerant {
		return fmt.Errorf("invalid load_mode: %q (must be strict or tolerant)", c.LoadMode)
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text or json)", c.OutputFormat)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	// Duration serializes as a string for readability.
	type configFile struct {
		ServiceURL       string       `yaml:"service_url"`
		EngineURL        string       `yaml:"engine_url,omitempty"`
		Timeout          string       `yaml:"timeout"`
		PreserveTiming   bool         `yaml:"preserve_timing"`
		TimeScale        float64      `yaml:"time_scale"`
		DispatchOrder    string       `yaml:"dispatch_order"`
		LoadMode         string       `yaml:"load_mode"`
		ChunkDir         string       `yaml:"chunk_dir,omitempty"`
		DefaultMeetingID string       `yaml:"default_meeting_id,omitempty"`
		OutputFormat     OutputFormat `yaml:"output_format"`
		Debug            bool         `yaml:"debug,omitempty"`
	}

	fileCfg := configFile{
		ServiceURL:       cfg.ServiceURL,
		EngineURL:        cfg.EngineURL,
		Timeout:          cfg.Timeout.String(),
		PreserveTiming:   cfg.PreserveTiming,
		TimeScale:        cfg.TimeScale,
		DispatchOrder:    cfg.DispatchOrder,
		LoadMode:         cfg.LoadMode,
		ChunkDir:         cfg.ChunkDir,
		DefaultMeetingID: cfg.DefaultMeetingID,
		OutputFormat:     cfg.OutputFormat,
		Debug:            cfg.Debug,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
