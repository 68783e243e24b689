package transcription

import (
	"time"

	"github.com/yegors/livecap/internal/transcript"
)

// Config represents the configuration for the transcription service
type Config struct {
	OpenAIAPIKey          string
	Model                 string
	PrimaryLanguage       string
	SecondaryLanguage     string
	ActiveLanguageMode    string // "primary" or "secondary"
	RetryMaxAttempts      int
	RetryInitialBackoffMs int
	TimeoutSeconds        int // HTTP timeout for OpenAI API requests
}

// ActiveLanguage returns the language hint for the configured mode.
func (c Config) ActiveLanguage() string {
	if c.ActiveLanguageMode == "secondary" && c.SecondaryLanguage != "" {
		return c.SecondaryLanguage
	}
	return c.PrimaryLanguage
}

// ActiveChannel returns the transcript channel for the configured mode.
func (c Config) ActiveChannel() transcript.Channel {
	if c.ActiveLanguageMode == "secondary" {
		return transcript.ChannelSecondary
	}
	return transcript.ChannelPrimary
}

// Task tracks one window from dispatch until its result is consumed.
// Language and prompt context are captured at dispatch time so later
// reconciler state changes cannot alter an in-flight request.
type Task struct {
	ID            string
	Language      string
	Channel       transcript.Channel
	PromptContext string
	WindowIndex   int
	CreatedAt     time.Time
}

// Result is the outcome of one upload, success or failure.
type Result struct {
	TaskID    string
	Text      string
	Language  string
	Channel   transcript.Channel
	Err       error
	Timestamp time.Time
	Duration  time.Duration // wall time of the upload round trip
}
