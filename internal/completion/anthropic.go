package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deusflow/opbop/internal/model"
)

type Anthropic struct {
	client        *anthropic.Client
	model         anthropic.Model
	maxInputChars int
}

// NewAnthropic builds a Messages API client. An empty modelName selects
// Claude Haiku 4.5 and an empty baseURL the public endpoint.
func NewAnthropic(apiKey, modelName, baseURL string, maxInputChars int) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)

	m := anthropic.ModelClaudeHaiku4_5
	if modelName != "" {
		m = anthropic.Model(modelName)
	}
	return &Anthropic{client: &client, model: m, maxInputChars: maxInputChars}
}

func (a *Anthropic) complete(ctx context.Context, system, text string, maxTokens int64) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", anthropicError(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no response from anthropic")
	}
	return b.String(), nil
}

func (a *Anthropic) InputLimit() int { return a.maxInputChars }

func (a *Anthropic) Simplify(ctx context.Context, text string) (string, error) {
	if err := checkLength(text, a.maxInputChars); err != nil {
		return "", err
	}
	out, err := a.complete(ctx, simplifyPrompt, text, 1024)
	if err != nil {
		return "", err
	}
	return SanitizeText(out), nil
}

func (a *Anthropic) Moderate(ctx context.Context, text string) (model.Sensitivity, error) {
	if err := checkLength(text, a.maxInputChars); err != nil {
		return 0, err
	}
	out, err := a.complete(ctx, moderatePrompt, text, 8)
	if err != nil {
		return 0, err
	}
	return parseSensitivity(out)
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusRequestEntityTooLarge ||
			(apiErr.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Error()), "prompt is too long")) {
			return fmt.Errorf("%w: %v", ErrInputTooLarge, err)
		}
	}
	return fmt.Errorf("anthropic API error: %w", err)
}
