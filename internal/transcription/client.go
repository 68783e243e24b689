package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yegors/livecap/pkg/logger"
)

// Uploader submits an encoded audio payload for recognition.
type Uploader interface {
	Transcribe(ctx context.Context, payload []byte, language, prompt string) (string, error)
}

// OpenAIClient uploads WAV payloads to the OpenAI transcription API.
type OpenAIClient struct {
	client openai.Client
	config Config
	logger *logger.Logger
}

// NewOpenAIClient creates a transcription API client.
func NewOpenAIClient(config Config, log *logger.Logger) (*OpenAIClient, error) {
	if config.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	client := openai.NewClient(
		option.WithAPIKey(config.OpenAIAPIKey),
		option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		}),
	)
	return &OpenAIClient{
		client: client,
		config: config,
		logger: log.Named("openai-stt"),
	}, nil
}

// Transcribe uploads one WAV payload and returns the recognized text.
// Transient failures (429/5xx, network) are retried with exponential
// backoff; a malformed response degrades to empty text rather than an
// error so a single bad segment never stalls the pipeline.
func (c *OpenAIClient) Transcribe(ctx context.Context, payload []byte, language, prompt string) (string, error) {
	var lastErr error
	backoff := time.Duration(c.config.RetryInitialBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 800 * time.Millisecond
	}

	for attempt := 0; attempt <= c.config.RetryMaxAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying transcription upload",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, err := c.upload(ctx, payload, language, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return "", fmt.Errorf("transcription upload failed: %w", lastErr)
}

func (c *OpenAIClient) upload(ctx context.Context, payload []byte, language, prompt string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(c.config.Model),
		File:  openai.File(bytes.NewReader(payload), "segment.wav", "audio/wav"),
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	if prompt != "" {
		params.Prompt = openai.String(prompt)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if resp == nil {
		// Degrade to empty text, the reconciler drops it.
		c.logger.Warn("Empty transcription response body")
		return "", nil
	}
	return resp.Text, nil
}

// isRetryable reports whether an upload error is worth another attempt.
// Rate limits and server errors are transient; 4xx request errors are
// not. Plain network errors retry.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
