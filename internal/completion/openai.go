package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/opbop/internal/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI simplifies with chat completions and rates with the moderation
// endpoint.
type OpenAI struct {
	client        *openai.Client
	model         string
	maxInputChars int
}

func NewOpenAI(apiKey, modelName, baseURL string, maxInputChars int) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return &OpenAI{
		client:        openai.NewClientWithConfig(cfg),
		model:         modelName,
		maxInputChars: maxInputChars,
	}
}

func (o *OpenAI) InputLimit() int { return o.maxInputChars }

func (o *OpenAI) Simplify(ctx context.Context, text string) (string, error) {
	if err := checkLength(text, o.maxInputChars); err != nil {
		return "", err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: simplifyPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return SanitizeText(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) Moderate(ctx context.Context, text string) (model.Sensitivity, error) {
	if err := checkLength(text, o.maxInputChars); err != nil {
		return 0, err
	}

	resp, err := o.client.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return 0, openAIError(err)
	}

	rating := model.SensitivityNone
	for _, r := range resp.Results {
		switch {
		case r.Categories.Sexual || r.Categories.SexualMinors:
			return model.SensitivityExplicit, nil
		case r.Flagged:
			rating = model.SensitivityMild
		}
	}
	return rating, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := fmt.Sprint(apiErr.Code)
		if code == "context_length_exceeded" || code == "string_above_max_length" ||
			apiErr.HTTPStatusCode == http.StatusRequestEntityTooLarge ||
			strings.Contains(strings.ToLower(apiErr.Message), "maximum context length") {
			return fmt.Errorf("%w: %v", ErrInputTooLarge, err)
		}
	}
	return fmt.Errorf("openai: %w", err)
}
