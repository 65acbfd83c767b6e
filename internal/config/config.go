// Package config provides the configuration structure for speech-batch.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Default values applied when the configuration file omits a field.
const (
	defaultServiceURL     = "http://localhost:8880"
	defaultModel          = "kokoro"
	defaultResponseFormat = "mp3"
	defaultTimeoutSeconds = 60
	defaultSpeed          = 1.0

	defaultStateBucket         = "speech-batch-state"
	defaultAudioBucket         = "speech-batch-audio"
	defaultAudioCreatedSubject = "speech.batch.audio.created"
)

// defaultFallbackVoices is the voice set used when the service's voice list
// cannot be fetched. It is configuration, not behavior: override it with
// workflow.fallback_voices in the TOML file.
var defaultFallbackVoices = []string{
	"af_heart", "af_bella", "af_sky", "am_adam", "bf_emma", "bm_george",
}

// defaultSpeedMultipliers is the fixed set of allowed speed multipliers.
var defaultSpeedMultipliers = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// SpeechServiceConfig holds the remote synthesis service settings.
type SpeechServiceConfig struct {
	URL            string `toml:"url"`
	Model          string `toml:"model"`
	ResponseFormat string `toml:"response_format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WorkflowConfig holds the batch workflow settings.
type WorkflowConfig struct {
	FallbackVoices   []string  `toml:"fallback_voices"`
	SpeedMultipliers []float64 `toml:"speed_multipliers"`
	DefaultSpeed     float64   `toml:"default_speed"`
}

// NATSConfig holds the embedded storage plane settings.
type NATSConfig struct {
	DataDir             string `toml:"data_dir"`
	StateBucket         string `toml:"state_bucket"`
	AudioBucket         string `toml:"audio_bucket"`
	AudioCreatedSubject string `toml:"audio_created_subject"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Speech   SpeechServiceConfig `toml:"speech_service"`
	Workflow WorkflowConfig      `toml:"workflow"`
	NATS     NATSConfig          `toml:"nats"`
	Paths    PathsConfig         `toml:"paths"`
}

// Load loads the configuration for speech-batch and fills defaults for any
// omitted fields.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// Default returns a configuration with every field set to its default value.
// It is used when no configuration file is present.
func Default() *Config {
	cfg := &Config{
		Speech:   SpeechServiceConfig{URL: "", Model: "", ResponseFormat: "", TimeoutSeconds: 0},
		Workflow: WorkflowConfig{FallbackVoices: nil, SpeedMultipliers: nil, DefaultSpeed: 0},
		NATS:     NATSConfig{DataDir: "", StateBucket: "", AudioBucket: "", AudioCreatedSubject: ""},
		Paths:    PathsConfig{BaseLogsDir: "", OutputDir: ""},
	}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Speech.URL == "" {
		c.Speech.URL = defaultServiceURL
	}

	if c.Speech.Model == "" {
		c.Speech.Model = defaultModel
	}

	if c.Speech.ResponseFormat == "" {
		c.Speech.ResponseFormat = defaultResponseFormat
	}

	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultTimeoutSeconds
	}

	if len(c.Workflow.FallbackVoices) == 0 {
		c.Workflow.FallbackVoices = append([]string(nil), defaultFallbackVoices...)
	}

	if len(c.Workflow.SpeedMultipliers) == 0 {
		c.Workflow.SpeedMultipliers = append([]float64(nil), defaultSpeedMultipliers...)
	}

	if c.Workflow.DefaultSpeed == 0 {
		c.Workflow.DefaultSpeed = defaultSpeed
	}

	if c.NATS.DataDir == "" {
		c.NATS.DataDir = defaultDataDir()
	}

	if c.NATS.StateBucket == "" {
		c.NATS.StateBucket = defaultStateBucket
	}

	if c.NATS.AudioBucket == "" {
		c.NATS.AudioBucket = defaultAudioBucket
	}

	if c.NATS.AudioCreatedSubject == "" {
		c.NATS.AudioCreatedSubject = defaultAudioCreatedSubject
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = filepath.Join(c.NATS.DataDir, "logs")
	}

	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = "."
	}
}

// defaultDataDir resolves the application data directory, preferring the
// user cache directory and falling back to a temp location.
func defaultDataDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "speech-batch")
	}

	return filepath.Join(cacheDir, "speech-batch")
}
