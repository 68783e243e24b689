package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"

	"github.com/yegors/livecap/pkg/logger"
)

// Config represents the enrichment service configuration
type Config struct {
	Enabled           bool
	Model             string
	APIKey            string
	PrimaryLanguage   string
	SecondaryLanguage string
	SystemPromptPath  string
	RetryMaxAttempts  int
	RetryBackoffMs    int
	TimeoutSeconds    int
}

// Analysis is the structured result of one enrichment call.
type Analysis struct {
	OriginalLanguage     string `json:"originalLanguage"`
	IsNotPrimaryLanguage bool   `json:"isNotPrimaryLanguage"`
	PrimaryTranslation   string `json:"primaryTranslation"`
}

// LanguageService detects the language of a text and translates it into
// the primary language when they differ.
type LanguageService interface {
	Analyze(ctx context.Context, text, languageHint string) (Analysis, error)
}

// enrichmentRequest is the user message payload.
type enrichmentRequest struct {
	Task                 string `json:"task"`
	PrimaryLanguage      string `json:"primary_language"`
	SecondaryLanguage    string `json:"secondary_language"`
	OriginalLanguageHint string `json:"original_language_hint"`
	Text                 string `json:"text"`
}

// analysisSchema is the strict response schema requested from the model.
var analysisSchema = map[string]interface{}{
	"$schema":              "http://json-schema.org/draft-07/schema#",
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"originalLanguage", "isNotPrimaryLanguage", "primaryTranslation"},
	"properties": map[string]interface{}{
		"originalLanguage": map[string]interface{}{
			"type":        "string",
			"description": "Detected language of the text as an ISO code such as zh/ja/en",
		},
		"isNotPrimaryLanguage": map[string]interface{}{
			"type":        "boolean",
			"description": "Whether the text language differs from primary_language",
		},
		"primaryTranslation": map[string]interface{}{
			"description": "Translation into primary_language when the text language differs, otherwise null",
			"anyOf": []map[string]interface{}{
				{"type": "string"},
				{"type": "null"},
			},
		},
	},
}

// OpenAIClient performs enrichment calls against the chat completions
// API with a strict JSON schema response format.
type OpenAIClient struct {
	client   openai.Client
	config   Config
	renderer *PromptRenderer
	logger   *logger.Logger
}

// NewOpenAIClient creates an enrichment API client.
func NewOpenAIClient(config Config, renderer *PromptRenderer, log *logger.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		}),
	)
	return &OpenAIClient{
		client:   client,
		config:   config,
		renderer: renderer,
		logger:   log.Named("openai-enrich"),
	}, nil
}

var _ LanguageService = (*OpenAIClient)(nil)

// Analyze requests language detection plus translation for one entry.
// Transient API failures retry with backoff; an unparseable response
// falls back to the language hint with no translation rather than
// failing the entry.
func (c *OpenAIClient) Analyze(ctx context.Context, text, languageHint string) (Analysis, error) {
	systemPrompt, err := c.renderer.Render()
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to render system prompt: %w", err)
	}

	reqPayload, err := json.Marshal(enrichmentRequest{
		Task:                 "translate_transcript",
		PrimaryLanguage:      c.config.PrimaryLanguage,
		SecondaryLanguage:    c.config.SecondaryLanguage,
		OriginalLanguageHint: languageHint,
		Text:                 text,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to marshal enrichment request: %w", err)
	}

	var content string
	var lastErr error
	backoff := time.Duration(c.config.RetryBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 800 * time.Millisecond
	}
	for attempt := 0; attempt <= c.config.RetryMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Analysis{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		content, lastErr = c.complete(ctx, systemPrompt, string(reqPayload))
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			break
		}
		c.logger.Debug("Retrying enrichment call",
			logger.Int("attempt", attempt+1),
			logger.Error(lastErr))
	}
	if lastErr != nil {
		return Analysis{}, fmt.Errorf("enrichment call failed: %w", lastErr)
	}

	return c.parse(content, languageHint), nil
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPayload string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPayload),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "TranslateTranscript",
					Strict: openai.Bool(true),
					Schema: analysisSchema,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// parse extracts the structured analysis. The ladder: strict JSON
// unmarshal, then field-wise gjson extraction for responses wrapped in
// prose or fences, then a minimal hint-based fallback.
func (c *OpenAIClient) parse(content, languageHint string) Analysis {
	var out struct {
		OriginalLanguage     string  `json:"originalLanguage"`
		IsNotPrimaryLanguage bool    `json:"isNotPrimaryLanguage"`
		PrimaryTranslation   *string `json:"primaryTranslation"`
	}
	if err := json.Unmarshal([]byte(content), &out); err == nil && out.OriginalLanguage != "" {
		a := Analysis{
			OriginalLanguage:     out.OriginalLanguage,
			IsNotPrimaryLanguage: out.IsNotPrimaryLanguage,
		}
		if out.PrimaryTranslation != nil {
			a.PrimaryTranslation = *out.PrimaryTranslation
		}
		return a
	}

	if lang := gjson.Get(content, "originalLanguage"); lang.Exists() && lang.String() != "" {
		return Analysis{
			OriginalLanguage:     lang.String(),
			IsNotPrimaryLanguage: gjson.Get(content, "isNotPrimaryLanguage").Bool(),
			PrimaryTranslation:   gjson.Get(content, "primaryTranslation").String(),
		}
	}

	c.logger.Warn("Unparseable enrichment response, using hint fallback",
		logger.String("hint", languageHint))
	return Analysis{
		OriginalLanguage:     languageHint,
		IsNotPrimaryLanguage: languageHint != c.config.PrimaryLanguage,
		PrimaryTranslation:   "",
	}
}

// isRetryable reports whether an enrichment error is transient.
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
