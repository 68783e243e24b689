package enrichment

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/yegors/livecap/pkg/logger"
)

// PromptContext carries the session data a system prompt template can
// reference.
type PromptContext struct {
	Timestamp         time.Time
	PrimaryLanguage   string
	SecondaryLanguage string
}

// defaultSystemPrompt instructs the model to detect the language and
// translate into the primary language when they differ.
const defaultSystemPrompt = `You are a translation assistant for live captions.
1) Determine the language of the text.
2) If the text language is not the primary language ({{.PrimaryLanguage}}), provide an accurate translation into the primary language; otherwise the translation field is null.
3) Output strict JSON with no additional commentary.`

// PromptRenderer renders the enrichment system prompt, from a template
// file when configured and from the built-in default otherwise.
type PromptRenderer struct {
	templatePath      string
	primaryLanguage   string
	secondaryLanguage string
	logger            *logger.Logger
}

// NewPromptRenderer creates a prompt renderer. templatePath may be
// empty.
func NewPromptRenderer(templatePath, primaryLanguage, secondaryLanguage string, log *logger.Logger) *PromptRenderer {
	return &PromptRenderer{
		templatePath:      templatePath,
		primaryLanguage:   primaryLanguage,
		secondaryLanguage: secondaryLanguage,
		logger:            log.Named("prompt-renderer"),
	}
}

// Render produces the system prompt with current language context.
func (p *PromptRenderer) Render() (string, error) {
	text := defaultSystemPrompt
	if p.templatePath != "" {
		data, err := os.ReadFile(p.templatePath)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt template %s: %w", p.templatePath, err)
		}
		text = string(data)
	}

	tmpl, err := template.New("system-prompt").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	ctx := PromptContext{
		Timestamp:         time.Now().UTC(),
		PrimaryLanguage:   p.primaryLanguage,
		SecondaryLanguage: p.secondaryLanguage,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return buf.String(), nil
}
