package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete livecap configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Capture       CaptureConfig       `toml:"capture"`
	VAD           VADConfig           `toml:"vad"`
	Segmenter     SegmenterConfig     `toml:"segmenter"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Reconciler    ReconcilerConfig    `toml:"reconciler"`
	Enrichment    EnrichmentConfig    `toml:"enrichment"`
	Storage       StorageConfig       `toml:"storage"`
	Logging       LoggingConfig       `toml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	StaticFilesDir     string   `toml:"static_files_dir"`
}

// CaptureConfig contains audio capture source configuration
type CaptureConfig struct {
	SourceURL      string `toml:"source_url"`
	SampleRate     int    `toml:"sample_rate"`
	FrameSize      int    `toml:"frame_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// VADConfig contains voice activity gate configuration
type VADConfig struct {
	Threshold     float64 `toml:"threshold"`
	SilenceFrames int     `toml:"silence_frames"`
}

// SegmenterConfig contains segment windower configuration
type SegmenterConfig struct {
	SegmentDurationSec float64 `toml:"segment_duration_sec"`
	OverlapDurationSec float64 `toml:"overlap_duration_sec"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	OpenAIAPIKey          string `toml:"openai_api_key"`
	Model                 string `toml:"model"`
	PrimaryLanguage       string `toml:"primary_language"`
	SecondaryLanguage     string `toml:"secondary_language"`
	ActiveLanguageMode    string `toml:"active_language_mode"` // "primary" or "secondary"
	RetryMaxAttempts      int    `toml:"retry_max_attempts"`
	RetryInitialBackoffMs int    `toml:"retry_initial_backoff_ms"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
}

// ReconcilerConfig contains transcript reconciliation tuning
type ReconcilerConfig struct {
	DedupLookback   int `toml:"dedup_lookback"`
	MergeWindowSec  int `toml:"merge_window_sec"`
	ContextTailMax  int `toml:"context_tail_max"`
	MinTextLength   int `toml:"min_text_length"`
	MaxTextLength   int `toml:"max_text_length"`
	DisplayMaxItems int `toml:"display_max_items"`
}

// EnrichmentConfig contains the structured post-processing configuration
type EnrichmentConfig struct {
	Enabled          bool   `toml:"enabled"`
	Model            string `toml:"model"`
	SystemPromptPath string `toml:"system_prompt_path"`
	RetryMaxAttempts int    `toml:"retry_max_attempts"`
	RetryBackoffMs   int    `toml:"retry_backoff_ms"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// StorageConfig contains transcript persistence configuration
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads and parses the configuration file, applying defaults
// before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment override keeps the key out of config files
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Transcription.OpenAIAPIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated with the pipeline defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Capture: CaptureConfig{
			SampleRate:     48000,
			FrameSize:      2048,
			TimeoutSeconds: 30,
		},
		VAD: VADConfig{
			Threshold:     0.02,
			SilenceFrames: 30,
		},
		Segmenter: SegmenterConfig{
			SegmentDurationSec: 8,
			OverlapDurationSec: 1,
		},
		Transcription: TranscriptionConfig{
			Model:                 "gpt-4o-transcribe",
			PrimaryLanguage:       "zh",
			ActiveLanguageMode:    "primary",
			RetryMaxAttempts:      2,
			RetryInitialBackoffMs: 800,
			TimeoutSeconds:        30,
		},
		Reconciler: ReconcilerConfig{
			DedupLookback:   12,
			MergeWindowSec:  15,
			ContextTailMax:  200,
			MinTextLength:   3,
			MaxTextLength:   200,
			DisplayMaxItems: 50,
		},
		Enrichment: EnrichmentConfig{
			Enabled:          true,
			Model:            "gpt-4.1-mini",
			RetryMaxAttempts: 2,
			RetryBackoffMs:   800,
			TimeoutSeconds:   30,
		},
		Storage: StorageConfig{
			DBPath: "livecap.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}
	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Reconciler.Validate(); err != nil {
		return fmt.Errorf("reconciler config: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}
	if v.SilenceFrames < 1 {
		return fmt.Errorf("silence_frames must be at least 1, got %d", v.SilenceFrames)
	}
	return nil
}

// Validate validates segmenter configuration. An overlap that is not
// strictly smaller than the segment produces a non-advancing window and
// is rejected here rather than discovered at runtime.
func (s *SegmenterConfig) Validate() error {
	if s.SegmentDurationSec <= 0 {
		return fmt.Errorf("segment_duration_sec must be positive, got %f", s.SegmentDurationSec)
	}
	if s.OverlapDurationSec < 0 {
		return fmt.Errorf("overlap_duration_sec must not be negative, got %f", s.OverlapDurationSec)
	}
	if s.OverlapDurationSec >= s.SegmentDurationSec {
		return fmt.Errorf("overlap_duration_sec (%f) must be smaller than segment_duration_sec (%f)",
			s.OverlapDurationSec, s.SegmentDurationSec)
	}
	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if t.ActiveLanguageMode != "primary" && t.ActiveLanguageMode != "secondary" {
		return fmt.Errorf("active_language_mode must be \"primary\" or \"secondary\", got %q", t.ActiveLanguageMode)
	}
	if t.ActiveLanguageMode == "secondary" && t.SecondaryLanguage == "" {
		return fmt.Errorf("secondary_language must be set when active_language_mode is \"secondary\"")
	}
	if t.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry_max_attempts must not be negative, got %d", t.RetryMaxAttempts)
	}
	return nil
}

// Validate validates reconciler configuration
func (r *ReconcilerConfig) Validate() error {
	if r.DedupLookback < 1 {
		return fmt.Errorf("dedup_lookback must be at least 1, got %d", r.DedupLookback)
	}
	if r.MergeWindowSec < 0 {
		return fmt.Errorf("merge_window_sec must not be negative, got %d", r.MergeWindowSec)
	}
	if r.MinTextLength < 1 || r.MaxTextLength <= r.MinTextLength {
		return fmt.Errorf("invalid text length bounds [%d, %d]", r.MinTextLength, r.MaxTextLength)
	}
	return nil
}

// GetTimeout returns the capture timeout as a duration
func (c *CaptureConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetTimeout returns the transcription request timeout as a duration
func (t *TranscriptionConfig) GetTimeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// GetTimeout returns the enrichment request timeout as a duration
func (e *EnrichmentConfig) GetTimeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// GetMergeWindow returns the expansion-merge window as a duration
func (r *ReconcilerConfig) GetMergeWindow() time.Duration {
	return time.Duration(r.MergeWindowSec) * time.Second
}

// SegmentSamples returns the window length in samples at the given rate
func (s *SegmenterConfig) SegmentSamples(sampleRate int) int {
	return int(s.SegmentDurationSec * float64(sampleRate))
}

// OverlapSamples returns the window overlap in samples at the given rate
func (s *SegmenterConfig) OverlapSamples(sampleRate int) int {
	return int(s.OverlapDurationSec * float64(sampleRate))
}
