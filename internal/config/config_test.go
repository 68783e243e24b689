package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero sample rate", func(c *Config) { c.Capture.SampleRate = 0 }},
		{"negative threshold", func(c *Config) { c.VAD.Threshold = -0.1 }},
		{"overlap equals segment", func(c *Config) { c.Segmenter.OverlapDurationSec = c.Segmenter.SegmentDurationSec }},
		{"empty model", func(c *Config) { c.Transcription.Model = "" }},
		{"bad language mode", func(c *Config) { c.Transcription.ActiveLanguageMode = "both" }},
		{"secondary mode without language", func(c *Config) {
			c.Transcription.ActiveLanguageMode = "secondary"
			c.Transcription.SecondaryLanguage = ""
		}},
		{"inverted text bounds", func(c *Config) {
			c.Reconciler.MinTextLength = 200
			c.Reconciler.MaxTextLength = 3
		}},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestLoadAppliesOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[capture]
source_url = "http://example.com/pcm"
sample_rate = 16000

[transcription]
primary_language = "ja"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Capture.SourceURL != "http://example.com/pcm" {
		t.Errorf("source_url = %q", cfg.Capture.SourceURL)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Errorf("sample_rate = %d", cfg.Capture.SampleRate)
	}
	if cfg.Transcription.PrimaryLanguage != "ja" {
		t.Errorf("primary_language = %q", cfg.Transcription.PrimaryLanguage)
	}
	// Keys untouched by the file keep their defaults.
	if cfg.Segmenter.SegmentDurationSec != 8 {
		t.Errorf("segment_duration_sec = %f", cfg.Segmenter.SegmentDurationSec)
	}
	if cfg.Transcription.OpenAIAPIKey != "sk-test-env" {
		t.Errorf("api key not taken from environment")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestSampleHelpers(t *testing.T) {
	s := SegmenterConfig{SegmentDurationSec: 8, OverlapDurationSec: 1}
	if got := s.SegmentSamples(48000); got != 384000 {
		t.Errorf("SegmentSamples = %d, want 384000", got)
	}
	if got := s.OverlapSamples(48000); got != 48000 {
		t.Errorf("OverlapSamples = %d, want 48000", got)
	}
}
